package consensus

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/empower1/proof-of-emotion/internal/biometric"
	"github.com/empower1/proof-of-emotion/internal/byzantine"
	"github.com/empower1/proof-of-emotion/internal/checkpoint"
	"github.com/empower1/proof-of-emotion/internal/consensuserrors"
	"github.com/empower1/proof-of-emotion/internal/fork"
	"github.com/empower1/proof-of-emotion/internal/health"
	"github.com/empower1/proof-of-emotion/internal/metrics"
	"github.com/empower1/proof-of-emotion/internal/poecrypto"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
	"github.com/empower1/proof-of-emotion/internal/pool"
	"github.com/empower1/proof-of-emotion/internal/staking"
	"github.com/empower1/proof-of-emotion/internal/utils"
)

// zeroHash is the genesis previous-hash value: 64 ASCII zeros.
var zeroHash = strings.Repeat("0", 64)

// poolCleanInterval is how often the pool-cleaner task sweeps expired
// transactions.
const poolCleanInterval = 60 * time.Second

// Engine is the Proof of Emotion consensus engine: it owns the
// validator registry, pending-transaction pool, consensus state,
// metrics, finalized-block log, and the Byzantine/fork/checkpoint
// collaborators, and drives one epoch per tick of its internal
// scheduler.
type Engine struct {
	config Config
	logger *zap.Logger

	validatorsMu sync.RWMutex
	validators   map[string]*biometric.Validator

	pendingPool *pool.Pool

	stateMu sync.RWMutex
	state   State

	metricsMu sync.RWMutex
	metrics   Metrics

	blocksMu        sync.RWMutex
	finalizedBlocks []poetypes.Block

	byzantineDetector *byzantine.Detector
	forkDetector      *fork.Detector
	checkpoints       *checkpoint.Manager
	ledger            *staking.Ledger

	promRegistry *prometheus.Registry
	prom         *metrics.PrometheusMetrics

	proofMu     sync.RWMutex
	latestProof *poecrypto.EmotionalProof

	startTime int64

	runningMu sync.Mutex
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// New constructs an Engine from config. Out-of-range thresholds or
// committee sizes are fatal here rather than surfacing mid-epoch.
func New(config Config, logger *zap.Logger) (*Engine, error) {
	if config.EmotionalThreshold > 100 {
		return nil, consensuserrors.ConfigError("emotional threshold must be <= 100")
	}
	if config.ByzantineThreshold < 51 || config.ByzantineThreshold > 100 {
		return nil, consensuserrors.ConfigError("byzantine threshold must be 51-100")
	}
	if config.CommitteeSize <= 0 {
		return nil, consensuserrors.ConfigError("committee size must be > 0")
	}
	if config.CommitteeSize > MaxCommitteeSize {
		return nil, consensuserrors.ConfigError(fmt.Sprintf("committee size must be <= %d", MaxCommitteeSize))
	}
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			return nil, consensuserrors.Internal(fmt.Sprintf("failed to build logger: %s", err))
		}
	}

	promRegistry, prom, err := metrics.NewDefaultRegistry()
	if err != nil {
		return nil, consensuserrors.Internal(fmt.Sprintf("failed to register metrics: %s", err))
	}

	return &Engine{
		config:      config,
		logger:      logger,
		validators:  make(map[string]*biometric.Validator),
		pendingPool: pool.New(),
		state: State{
			NetworkHealth: 100,
		},
		byzantineDetector: byzantine.NewDetector(),
		forkDetector:      fork.NewDetector(),
		checkpoints:       checkpoint.NewManager(config.CheckpointInterval, uint64(config.ByzantineThreshold)),
		ledger:            staking.NewLedger(config.MinimumStake),
		promRegistry:      promRegistry,
		prom:              prom,
		startTime:         poecrypto.NowMillis() / 1000,
	}, nil
}

// RegisterValidator admits validator into both the emotional-assessment
// registry and the stake ledger. Fails InsufficientStake below the
// configured minimum.
func (e *Engine) RegisterValidator(id string, keyPair *poecrypto.KeyPair, address string, stake uint64, commission uint8) error {
	if stake < e.config.MinimumStake {
		return consensuserrors.InsufficientStake(stake, e.config.MinimumStake)
	}
	if err := e.ledger.RegisterValidator(id, address, stake, commission); err != nil {
		return err
	}

	v := biometric.NewValidator(id, keyPair, stake)

	e.validatorsMu.Lock()
	e.validators[id] = v
	e.validatorsMu.Unlock()

	e.logger.Info("validator registered", zap.String("validator_id", id), zap.Uint64("stake", stake))
	return nil
}

// SubmitTransaction enqueues tx in the pending pool.
func (e *Engine) SubmitTransaction(tx poetypes.Transaction) error {
	if err := e.pendingPool.Submit(tx); err != nil {
		return err
	}
	e.stateMu.Lock()
	e.state.PendingTransactions = e.pendingPool.Count()
	e.stateMu.Unlock()
	return nil
}

// Start begins the epoch loop and pool-cleaner background tasks.
// Fails AlreadyRunning if already started.
func (e *Engine) Start() error {
	e.runningMu.Lock()
	if e.running {
		e.runningMu.Unlock()
		return consensuserrors.AlreadyRunning()
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.runningMu.Unlock()

	e.logger.Info("starting proof of emotion consensus engine",
		zap.String("protocol_version", ProtocolVersion),
		zap.Uint64("epoch_duration_ms", e.config.EpochDurationMs),
		zap.Uint8("emotional_threshold", e.config.EmotionalThreshold),
		zap.Uint8("byzantine_threshold", e.config.ByzantineThreshold))

	e.wg.Add(2)
	go e.epochLoop()
	go e.poolCleanerLoop()

	return nil
}

// Stop signals the background tasks to exit and waits for them to
// finish. Fails NotRunning if not started.
func (e *Engine) Stop() error {
	e.runningMu.Lock()
	if !e.running {
		e.runningMu.Unlock()
		return consensuserrors.NotRunning()
	}
	e.running = false
	close(e.stopChan)
	e.runningMu.Unlock()

	e.logger.Info("stopping proof of emotion consensus engine")
	e.wg.Wait()
	return nil
}

func (e *Engine) isRunning() bool {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()
	return e.running
}

func (e *Engine) epochLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Duration(e.config.EpochDurationMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !e.isRunning() {
				return
			}
			if err := e.executeEpoch(); err != nil {
				e.logger.Warn("epoch failed", zap.Error(err))
				e.metricsMu.Lock()
				e.metrics.FailedEpochs++
				e.metricsMu.Unlock()
				e.prom.ObserveEpoch(metrics.EpochObservation{
					ActiveValidators: e.ledger.ActiveValidatorCount(),
				})
			} else {
				e.metricsMu.Lock()
				e.metrics.SuccessfulEpochs++
				e.metricsMu.Unlock()
			}
		case <-e.stopChan:
			e.logger.Info("epoch loop received shutdown signal")
			return
		}
	}
}

func (e *Engine) poolCleanerLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(poolCleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := e.pendingPool.CleanExpired()
			if removed > 0 {
				e.logger.Debug("pool cleaner reaped expired transactions", zap.Int("count", removed))
			}
			e.stateMu.Lock()
			e.state.PendingTransactions = e.pendingPool.Count()
			e.stateMu.Unlock()
		case <-e.stopChan:
			return
		}
	}
}

// executeEpoch runs the five-phase epoch pipeline once: assessment,
// committee selection, proposal, voting, finalization.
func (e *Engine) executeEpoch() error {
	start := time.Now()

	e.stateMu.Lock()
	e.state.CurrentEpoch++
	epoch := e.state.CurrentEpoch
	e.stateMu.Unlock()

	e.logger.Info("starting epoch", zap.Uint64("epoch", epoch))

	eligible := e.performEmotionalAssessment()
	if len(eligible) == 0 {
		return consensuserrors.CommitteeSelectionFailed("no validators meet emotional fitness threshold")
	}

	committee := e.selectCommittee(eligible)
	e.logger.Info("committee selected", zap.Int("size", len(committee)))

	lockedStake := e.lockCommitteeStake(committee)
	defer e.unlockCommitteeStake(lockedStake)

	proposalStart := time.Now()
	block, err := e.proposeBlock(committee, epoch)
	if err != nil {
		return err
	}
	e.prom.ObserveBlockProposal(time.Since(proposalStart).Seconds())

	votingStart := time.Now()
	votingResult, err := e.executeVoting(committee, block, epoch)
	if err != nil {
		e.requeueTransactions(block.Transactions)
		return err
	}
	e.prom.ObserveVoting(time.Since(votingStart).Seconds())
	if !votingResult.Success {
		e.requeueTransactions(block.Transactions)
		reason := votingResult.Reason
		if reason == "" {
			reason = "voting failed"
		}
		return consensuserrors.InvalidBlock(reason)
	}

	if err := e.finalizeBlock(block, votingResult, committee, epoch); err != nil {
		e.requeueTransactions(block.Transactions)
		return err
	}

	duration := uint64(time.Since(start).Milliseconds())
	e.metricsMu.Lock()
	e.metrics.TotalEpochs++
	if e.metrics.TotalEpochs == 1 {
		e.metrics.AverageDurationMs = duration
		e.metrics.AverageEmotionalScore = votingResult.AverageEmotionalScore
	} else {
		n := e.metrics.TotalEpochs
		e.metrics.AverageDurationMs = (e.metrics.AverageDurationMs*(n-1) + duration) / n
		e.metrics.AverageEmotionalScore = uint8((uint64(e.metrics.AverageEmotionalScore)*(n-1) + uint64(votingResult.AverageEmotionalScore)) / n)
	}
	e.metricsMu.Unlock()

	e.prom.ObserveEpoch(metrics.EpochObservation{
		Succeeded:             true,
		BlocksFinalized:       1,
		TransactionsProcessed: uint64(len(block.Transactions)),
		ActiveValidators:      e.ledger.ActiveValidatorCount(),
		DurationMs:            duration,
		AverageEmotionalScore: votingResult.AverageEmotionalScore,
	})
	e.prom.SetCommitteeSize(len(committee))

	e.logger.Info("epoch completed", zap.Uint64("epoch", epoch), zap.Uint64("duration_ms", duration))
	return nil
}

// performEmotionalAssessment refreshes every registered validator's
// emotional profile from a synthetic biometric reading batch and
// returns the eligible subset.
func (e *Engine) performEmotionalAssessment() []*biometric.Validator {
	e.validatorsMu.RLock()
	all := make([]*biometric.Validator, 0, len(e.validators))
	for _, v := range e.validators {
		all = append(all, v)
	}
	e.validatorsMu.RUnlock()

	eligible := make([]*biometric.Validator, 0, len(all))
	for _, v := range all {
		simulator := biometric.NewSimulator("device_"+v.ID(), v.ID())
		readings, err := simulator.CollectReadings()
		if err != nil {
			continue
		}
		if _, err := v.UpdateEmotionalState(readings); err != nil {
			continue
		}
		if v.IsEligible(e.config.EmotionalThreshold, e.config.MinimumStake) {
			eligible = append(eligible, v)
		}
	}

	return eligible
}

type scoredValidator struct {
	validator *biometric.Validator
	score     int64
}

// selectCommittee ranks eligible validators by
// score*isqrt(stake)*reputation/100, a fixed-point integer computation
// that avoids float-ordering hazards, and takes the top committee_size
// (or the whole eligible set if smaller). Ties break on validator id.
func (e *Engine) selectCommittee(eligible []*biometric.Validator) []*biometric.Validator {
	scored := make([]scoredValidator, 0, len(eligible))
	for _, v := range eligible {
		score := int64(v.EmotionalScore()) * isqrt(v.Stake()) * int64(v.Reputation()) / 100
		scored = append(scored, scoredValidator{validator: v, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].validator.ID() < scored[j].validator.ID()
	})

	committee := make([]*biometric.Validator, 0, e.config.CommitteeSize)
	for i := 0; i < e.config.CommitteeSize && i < len(scored); i++ {
		committee = append(committee, scored[i].validator)
	}
	return committee
}

// isqrt computes the integer square root of n.
func isqrt(n uint64) int64 {
	if n == 0 {
		return 0
	}
	return int64(math.Sqrt(float64(n)))
}

// lockCommitteeStake locks each committee member's currently available
// stake for the duration of the round — the nothing-at-stake defense:
// a validator that double-signs or double-votes while its stake sits
// locked still has it slashed from the locked balance. Returns the ids
// that were actually locked, so unlockCommitteeStake only releases
// what this round put a hold on.
func (e *Engine) lockCommitteeStake(committee []*biometric.Validator) []string {
	locked := make([]string, 0, len(committee))
	for _, v := range committee {
		validator, ok := e.ledger.GetValidator(v.ID())
		if !ok || validator.AvailableStake == 0 {
			continue
		}
		if err := e.ledger.LockStake(v.ID(), validator.AvailableStake); err != nil {
			e.logger.Warn("failed to lock committee stake", zap.String("validator_id", v.ID()), zap.Error(err))
			continue
		}
		locked = append(locked, v.ID())
	}
	return locked
}

// unlockCommitteeStake releases the stake lockCommitteeStake locked,
// once the round concludes (finalized or aborted).
func (e *Engine) unlockCommitteeStake(validatorIDs []string) {
	for _, id := range validatorIDs {
		if err := e.ledger.UnlockStake(id); err != nil {
			e.logger.Warn("failed to unlock committee stake", zap.String("validator_id", id), zap.Error(err))
		}
	}
}

// requeueTransactions returns transactions drained for a proposal back
// to the pending pool after an aborted round, so they stay candidates
// for the next epoch until included or expired.
func (e *Engine) requeueTransactions(txs []poetypes.Transaction) {
	for _, tx := range txs {
		if err := e.pendingPool.Submit(tx); err != nil {
			e.logger.Warn("failed to requeue transaction after aborted round", zap.String("tx_hash", tx.Hash), zap.Error(err))
		}
	}
	e.stateMu.Lock()
	e.state.PendingTransactions = e.pendingPool.Count()
	e.stateMu.Unlock()
}

// proposeBlock has the committee primary (highest-ranked member) drain
// up to 1000 pending transactions, construct the next block, sign it,
// and record the proposal with the Byzantine detector.
func (e *Engine) proposeBlock(committee []*biometric.Validator, epoch uint64) (*poetypes.Block, error) {
	if len(committee) == 0 {
		return nil, consensuserrors.CommitteeSelectionFailed("empty committee")
	}
	primary := committee[0]

	txs := e.pendingPool.Drain()

	e.blocksMu.RLock()
	lastHeight := uint64(len(e.finalizedBlocks))
	previousHash := zeroHash
	if lastHeight > 0 {
		previousHash = e.finalizedBlocks[lastHeight-1].Hash
	}
	e.blocksMu.RUnlock()

	header := poetypes.BlockHeader{
		Height:         lastHeight + 1,
		Epoch:          epoch,
		PreviousHash:   previousHash,
		MerkleRoot:     poetypes.CalculateMerkleRoot(txs),
		Timestamp:      poecrypto.NowMillis(),
		ValidatorID:    primary.ID(),
		EmotionalScore: primary.EmotionalScore(),
	}

	block := &poetypes.Block{Header: header, Transactions: txs}
	block.Hash = poetypes.CalculateBlockHash(block)

	if err := block.Sign(primary.KeyPair()); err != nil {
		return nil, consensuserrors.Internal(err.Error())
	}

	if byzEvent, err := e.byzantineDetector.RecordProposal(primary.ID(), block.Header.Height, block.Hash); err != nil {
		e.requeueTransactions(block.Transactions)
		slashed, slashErr := e.ledger.SlashValidatorWithSeverity(primary.ID(), byzEvent.Offense, byzEvent.Severity, err.Error())
		if slashErr != nil {
			e.logger.Error("failed to slash double-signing validator", zap.Error(slashErr))
		}
		e.metricsMu.Lock()
		e.metrics.ByzantineFailures++
		e.metrics.StakeSlashed += slashed
		e.metricsMu.Unlock()
		e.prom.RecordByzantineEvent("double_sign", primary.ID())
		return nil, consensuserrors.ByzantineFailure(err.Error())
	}

	e.logger.Info("block proposed", zap.Uint64("height", block.Header.Height), zap.String("proposer", primary.ID()))
	return block, nil
}

// executeVoting has every committee member validate block against the
// expected (previous_hash, height, epoch) tuple and cast a vote,
// records each vote with the Byzantine detector (slashing and
// dropping the vote on conflict), and tallies quorum.
func (e *Engine) executeVoting(committee []*biometric.Validator, block *poetypes.Block, epoch uint64) (*poetypes.VotingResult, error) {
	e.blocksMu.RLock()
	expectedHeight := uint64(len(e.finalizedBlocks)) + 1
	expectedPreviousHash := zeroHash
	if len(e.finalizedBlocks) > 0 {
		expectedPreviousHash = e.finalizedBlocks[len(e.finalizedBlocks)-1].Hash
	}
	e.blocksMu.RUnlock()

	votes := make([]poetypes.Vote, 0, len(committee))
	participants := make([]string, 0, len(committee))
	approvedCount := 0
	byzantineCount := 0
	var totalEmotionalScore uint32

	for _, validator := range committee {
		err := biometric.ValidateBlock(block, expectedPreviousHash, expectedHeight, epoch)
		approved := err == nil
		reason := ""
		if err != nil {
			reason = err.Error()
			e.logger.Warn("validator rejected block", zap.String("validator_id", validator.ID()), zap.String("reason", reason))
		}

		vote := poetypes.Vote{
			ValidatorID:    validator.ID(),
			BlockHash:      block.Hash,
			Epoch:          epoch,
			Round:          0,
			EmotionalScore: validator.EmotionalScore(),
			Timestamp:      poecrypto.NowMillis(),
			Approved:       approved,
			Reason:         reason,
		}

		if byzEvent, byzErr := e.byzantineDetector.RecordVote(vote); byzErr != nil {
			slashed, slashErr := e.ledger.SlashValidatorWithSeverity(validator.ID(), byzEvent.Offense, byzEvent.Severity, byzErr.Error())
			if slashErr != nil {
				e.logger.Error("failed to slash byzantine voter", zap.Error(slashErr))
			}
			e.metricsMu.Lock()
			e.metrics.ByzantineFailures++
			e.metrics.StakeSlashed += slashed
			e.metricsMu.Unlock()
			eventType := "double_vote"
			if byzEvent.Severity == staking.SeverityMajor {
				eventType = "equivocation"
			}
			e.prom.RecordByzantineEvent(eventType, validator.ID())
			byzantineCount++
			continue
		}

		if approved {
			approvedCount++
		}
		totalEmotionalScore += uint32(validator.EmotionalScore())
		participants = append(participants, validator.ID())
		votes = append(votes, vote)
	}
	e.prom.IncVotes(uint64(len(votes)))

	participantCount := len(votes)
	if participantCount == 0 {
		return &poetypes.VotingResult{Success: false, Reason: "no votes recorded"}, nil
	}

	requiredVotes := int(math.Ceil(float64(e.config.CommitteeSize) * (float64(e.config.ByzantineThreshold) / 100.0)))
	success := approvedCount >= requiredVotes
	consensusStrength := utils.Percentage(approvedCount, len(committee))
	averageEmotionalScore := uint8(totalEmotionalScore / uint32(participantCount))

	reason := ""
	if !success {
		reason = "insufficient votes"
	}

	return &poetypes.VotingResult{
		Success:               success,
		ConsensusStrength:     consensusStrength,
		ParticipantCount:      participantCount,
		ByzantineCount:        byzantineCount,
		AverageEmotionalScore: averageEmotionalScore,
		Participants:          participants,
		Votes:                 votes,
		Reason:                reason,
	}, nil
}

// finalizeBlock attaches consensus metadata, appends the block to the
// finalized log, updates consensus state, reaps included/expired
// pending transactions, runs fork detection, distributes rewards,
// updates metrics, and creates a checkpoint when the height falls on a
// checkpoint boundary.
func (e *Engine) finalizeBlock(block *poetypes.Block, voting *poetypes.VotingResult, committee []*biometric.Validator, epoch uint64) error {
	block.Header.ConsensusStrength = voting.ConsensusStrength
	block.ConsensusMetadata = &poetypes.ConsensusMetadata{
		ParticipantCount:  voting.ParticipantCount,
		ConsensusStrength: voting.ConsensusStrength,
		EmotionalFitness:  voting.AverageEmotionalScore,
		ByzantineFailures: voting.ByzantineCount,
		FinalizedAt:       poecrypto.NowMillis(),
		Participants:      voting.Participants,
	}

	e.blocksMu.Lock()
	e.finalizedBlocks = append(e.finalizedBlocks, *block)
	e.blocksMu.Unlock()

	if err := e.forkDetector.RecordBlock(block); err != nil {
		e.logger.Warn("fork detected on finalized block", zap.Error(err))
	}

	hashes := make([]string, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		hashes = append(hashes, tx.Hash)
	}
	e.pendingPool.Remove(hashes)
	e.pendingPool.CleanExpired()

	e.validatorsMu.RLock()
	totalValidators := len(e.validators)
	activeValidators := 0
	for _, v := range e.validators {
		if v.IsActive() {
			activeValidators++
		}
	}
	e.validatorsMu.RUnlock()

	participationRate := utils.Percentage(voting.ParticipantCount, totalValidators)

	e.stateMu.Lock()
	e.state.LastFinalizedHeight = block.Header.Height
	e.state.ConsensusStrength = voting.ConsensusStrength
	e.state.EmotionalFitness = voting.AverageEmotionalScore
	e.state.ParticipationRate = participationRate
	e.state.TotalValidators = totalValidators
	e.state.ActiveValidators = activeValidators
	e.state.PendingTransactions = e.pendingPool.Count()
	e.stateMu.Unlock()

	e.metricsMu.Lock()
	e.metrics.BlocksFinalized++
	e.metrics.TransactionsProcessed += uint64(len(block.Transactions))
	e.metricsMu.Unlock()

	e.prom.LastFinalizedHeight.Set(float64(block.Header.Height))
	e.prom.ConsensusStrength.Set(float64(voting.ConsensusStrength))
	e.prom.ConsensusStrengthHist.Observe(float64(voting.ConsensusStrength))
	e.prom.ParticipationRate.Set(float64(participationRate))
	e.prom.SetPendingTransactions(e.pendingPool.Count())
	e.prom.ActiveValidators.Set(float64(activeValidators))
	e.prom.CurrentEpoch.Set(float64(epoch))
	e.prom.SetNetworkHealth(float64(e.GetState().NetworkHealth))

	scores := make(map[string]uint8, len(committee))
	biometricHashes := make(map[string]string, len(committee))
	validatorIDs := make([]string, 0, len(committee))
	for _, v := range committee {
		scores[v.ID()] = v.EmotionalScore()
		biometricHashes[v.ID()] = poecrypto.HashBiometricData([]byte(v.ID()))
		validatorIDs = append(validatorIDs, v.ID())
		e.prom.UpdateValidatorStake(v.ID(), v.Stake())
		e.prom.UpdateValidatorReputation(v.ID(), v.Reputation())
	}

	if len(committee) > 0 {
		proof, err := poecrypto.NewEmotionalProof(validatorIDs, scores, biometricHashes, uint64(poecrypto.FreshnessWindow), poecrypto.NowMillis(), committee[0].KeyPair())
		if err != nil {
			e.logger.Warn("failed to build emotional proof", zap.Error(err))
		} else {
			e.proofMu.Lock()
			e.latestProof = proof
			e.proofMu.Unlock()
		}
	}

	dist := e.ledger.DistributeRewards(epoch, scores)
	e.metricsMu.Lock()
	e.metrics.RewardsDistributed += dist.TotalRewards
	e.metricsMu.Unlock()

	if e.checkpoints.ShouldCreateCheckpoint(block.Header.Height) {
		e.checkpoints.UpdateTotalStake(e.ledger.TotalStake())
		signatures := make([]checkpoint.ValidatorSignature, 0, len(committee))
		for _, v := range committee {
			sig, err := checkpoint.SignCheckpoint(block.Header.Height, block.Hash, block.Header.Epoch, block.Header.MerkleRoot, v.KeyPair())
			if err != nil {
				e.logger.Warn("validator failed to sign checkpoint", zap.String("validator_id", v.ID()), zap.Error(err))
				continue
			}
			signatures = append(signatures, checkpoint.ValidatorSignature{
				ValidatorID: v.ID(),
				Stake:       v.Stake(),
				Signature:   sig,
				PublicKey:   v.KeyPair().PublicKeyHex(),
			})
		}
		if _, err := e.checkpoints.CreateCheckpoint(block, signatures); err != nil {
			e.logger.Warn("checkpoint creation skipped", zap.Uint64("height", block.Header.Height), zap.Error(err))
		} else {
			e.logger.Info("checkpoint created", zap.Uint64("height", block.Header.Height))
		}
	}

	e.logger.Info("block finalized", zap.Uint64("height", block.Header.Height), zap.Int("transactions", len(block.Transactions)))
	return nil
}

// GetLatestEmotionalProof returns the most recently built aggregate
// emotional-fitness proof for the committee, if any epoch has
// finalized yet.
func (e *Engine) GetLatestEmotionalProof() (*poecrypto.EmotionalProof, bool) {
	e.proofMu.RLock()
	defer e.proofMu.RUnlock()
	return e.latestProof, e.latestProof != nil
}

// GetPrometheusRegistry exposes the engine's Prometheus registry for an
// external scrape endpoint to serve (exposition formatting itself is
// outside this package's scope).
func (e *Engine) GetPrometheusRegistry() *prometheus.Registry {
	return e.promRegistry
}

// GetState returns a snapshot of the current consensus state.
func (e *Engine) GetState() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

// GetMetrics returns a snapshot of accumulated consensus metrics.
func (e *Engine) GetMetrics() Metrics {
	e.metricsMu.RLock()
	defer e.metricsMu.RUnlock()
	return e.metrics
}

// GetValidatorCount returns the number of registered validators.
func (e *Engine) GetValidatorCount() int {
	e.validatorsMu.RLock()
	defer e.validatorsMu.RUnlock()
	return len(e.validators)
}

// GetFinalizedBlocks returns a copy of every finalized block.
func (e *Engine) GetFinalizedBlocks() []poetypes.Block {
	e.blocksMu.RLock()
	defer e.blocksMu.RUnlock()
	out := make([]poetypes.Block, len(e.finalizedBlocks))
	copy(out, e.finalizedBlocks)
	return out
}

// GetByzantineEvents returns every slashing event the Byzantine
// detector has recorded.
func (e *Engine) GetByzantineEvents() []staking.SlashingEvent {
	return e.byzantineDetector.GetSlashingEvents()
}

// GetForkDetector exposes the engine's fork detector for external
// inspection (tests, health checks).
func (e *Engine) GetForkDetector() *fork.Detector {
	return e.forkDetector
}

// GetCheckpointManager exposes the engine's checkpoint manager.
func (e *Engine) GetCheckpointManager() *checkpoint.Manager {
	return e.checkpoints
}

// GetLedger exposes the engine's stake ledger.
func (e *Engine) GetLedger() *staking.Ledger {
	return e.ledger
}

// RecoverFromCrash restores engine state from a checkpoint plus the
// subsequent finalized blocks a caller loaded from its own persistence
// layer (the engine itself persists nothing to disk). It loads
// the latest valid checkpoint, restores epoch and last-finalized height,
// replays history from the checkpoint's height forward verifying hash
// integrity and chain continuity at every step, feeds each replayed
// block into the fork detector, and finally validates continuity across
// the full supplied history end-to-end.
func (e *Engine) RecoverFromCrash(history []poetypes.Block) error {
	if len(history) == 0 {
		return nil
	}

	for i, block := range history {
		if poetypes.CalculateMerkleRoot(block.Transactions) != block.Header.MerkleRoot {
			return consensuserrors.StorageError(fmt.Sprintf("merkle root mismatch replaying height %d", block.Header.Height))
		}
		if poetypes.CalculateBlockHash(&block) != block.Hash {
			return consensuserrors.StorageError(fmt.Sprintf("hash mismatch replaying height %d", block.Header.Height))
		}
		if i > 0 {
			prev := history[i-1]
			if block.Header.Height != prev.Header.Height+1 {
				return consensuserrors.StorageError(fmt.Sprintf("height discontinuity: %d does not follow %d", block.Header.Height, prev.Header.Height))
			}
			if block.Header.PreviousHash != prev.Hash {
				return consensuserrors.StorageError(fmt.Sprintf("previous-hash mismatch at height %d", block.Header.Height))
			}
			if block.Header.Epoch < prev.Header.Epoch {
				return consensuserrors.StorageError(fmt.Sprintf("epoch regression at height %d", block.Header.Height))
			}
		}
	}

	replayFrom := 0
	if cp, ok := e.checkpoints.GetLatestCheckpoint(); ok {
		valid, err := e.checkpoints.VerifyCheckpoint(&cp)
		if err != nil || !valid {
			return consensuserrors.StorageError("latest checkpoint failed verification")
		}
		for i, block := range history {
			if block.Header.Height == cp.Height {
				replayFrom = i
				break
			}
		}
	}

	for _, block := range history[replayFrom:] {
		b := block
		if err := e.forkDetector.RecordBlock(&b); err != nil {
			e.logger.Warn("fork detected replaying crash recovery history", zap.Error(err))
		}
	}

	last := history[len(history)-1]
	e.blocksMu.Lock()
	e.finalizedBlocks = append([]poetypes.Block(nil), history...)
	e.blocksMu.Unlock()

	e.stateMu.Lock()
	e.state.CurrentEpoch = last.Header.Epoch
	e.state.LastFinalizedHeight = last.Header.Height
	e.stateMu.Unlock()

	e.logger.Info("recovered from crash",
		zap.Uint64("restored_epoch", last.Header.Epoch),
		zap.Uint64("restored_height", last.Header.Height),
		zap.Int("replayed_blocks", len(history)-replayFrom))
	return nil
}

// HealthSnapshot builds a health.Snapshot from the engine's current
// state and metrics, for use with health.FromSnapshot.
func (e *Engine) HealthSnapshot() health.Snapshot {
	state := e.GetState()
	metrics := e.GetMetrics()
	return health.Snapshot{
		CurrentEpoch:        state.CurrentEpoch,
		ConsensusStrength:   state.ConsensusStrength,
		TotalValidators:     state.TotalValidators,
		ActiveValidators:    state.ActiveValidators,
		LastFinalizedHeight: state.LastFinalizedHeight,
		PendingTransactions: state.PendingTransactions,
		ParticipationRate:   state.ParticipationRate,
		TotalEpochs:         metrics.TotalEpochs,
		ByzantineFailures:   metrics.ByzantineFailures,
	}
}

// GetHealth derives the engine's current health status from its latest
// state and metrics.
func (e *Engine) GetHealth() health.Status {
	return health.FromSnapshot(e.HealthSnapshot(), e.startTime)
}
