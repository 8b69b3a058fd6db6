// Package staking implements the stake ledger: validator registration,
// delegation, stake locking for the nothing-at-stake defense, unbonding,
// slashing, and reward distribution.
package staking

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/empower1/proof-of-emotion/internal/consensuserrors"
	"github.com/empower1/proof-of-emotion/internal/utils"
)

// rewardThreshold is the emotional score the reward multiplier pivots
// around: scores below it are penalized, scores above it are bonused.
const rewardThreshold = 75

// UnbondingPeriodEpochs is the number of epochs a validator's stake
// remains locked after begin_unbonding before complete_unbonding may
// withdraw it.
const UnbondingPeriodEpochs = 2016

// MinDelegationAmount is the smallest amount a delegator may stake to a
// validator in a single call.
const MinDelegationAmount = 1000

// baseRewardPool is the fixed per-epoch reward pool distributed across
// active validators and their delegators.
const baseRewardPool = 100_000

// Offense enumerates the Byzantine and liveness offenses a validator can
// be slashed for.
type Offense string

const (
	OffensePoorEmotionalBehavior Offense = "poor_emotional_behavior"
	OffenseMissedConsensus       Offense = "missed_consensus"
	OffenseInvalidBiometric      Offense = "invalid_biometric"
	OffenseDoubleSigning         Offense = "double_signing"
	OffenseDowntime              Offense = "downtime"
)

// Severity classifies how harshly an offense is punished.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) slashRate() float64 {
	switch s {
	case SeverityMinor:
		return 0.01
	case SeverityMajor:
		return 0.05
	case SeverityCritical:
		return 0.15
	default:
		return 0
	}
}

func (s Severity) reputationPenalty() uint8 {
	switch s {
	case SeverityMinor:
		return 5
	case SeverityMajor:
		return 10
	case SeverityCritical:
		return 20
	default:
		return 0
	}
}

func severityFor(offense Offense) Severity {
	switch offense {
	case OffenseInvalidBiometric:
		return SeverityMajor
	case OffenseDoubleSigning:
		return SeverityCritical
	default:
		return SeverityMinor
	}
}

// Validator is a registered stake-holding participant in the ledger.
type Validator struct {
	ID             string
	Address        string
	Stake          uint64
	LockedStake    uint64
	AvailableStake uint64
	UnlockEpoch    *uint64
	Reputation     uint8
	IsActive       bool
	Commission     uint8
	LastActivity   int64
	TotalRewards   uint64
	TotalPenalties uint64
}

// StakeStatus is the lifecycle state of a delegated stake entry.
type StakeStatus string

const (
	StakeActive    StakeStatus = "active"
	StakeUnbonding StakeStatus = "unbonding"
	StakeSlashed   StakeStatus = "slashed"
	StakeWithdrawn StakeStatus = "withdrawn"
)

// StakeEntry records one delegator's stake against one validator.
type StakeEntry struct {
	ValidatorID   string
	Delegator     string
	Amount        uint64
	Timestamp     int64
	LockupSeconds uint64
	Rewards       uint64
	Status        StakeStatus
}

// SlashingEvent records a single punitive action taken against a
// validator.
type SlashingEvent struct {
	ID          string
	ValidatorID string
	Offense     Offense
	Severity    Severity
	Rate        float64
	Amount      uint64
	Timestamp   int64
	Evidence    string
}

// RewardDistribution summarizes one epoch's reward payout.
type RewardDistribution struct {
	Epoch            uint64
	Timestamp        int64
	TotalRewards     uint64
	ValidatorRewards map[string]uint64
	DelegatorRewards map[string]uint64
}

// Ledger is the stake-accounting engine: validator registry, delegated
// stakes, slashing history, and reward history, each guarded by its own
// RWMutex.
type Ledger struct {
	mu         sync.RWMutex
	validators map[string]*Validator

	stakesMu sync.RWMutex
	stakes   map[string]*StakeEntry

	slashMu        sync.RWMutex
	slashingEvents []SlashingEvent

	rewardsMu     sync.RWMutex
	rewardHistory []RewardDistribution

	minStake uint64
}

// NewLedger constructs an empty stake ledger requiring minStake to
// register.
func NewLedger(minStake uint64) *Ledger {
	return &Ledger{
		validators: make(map[string]*Validator),
		stakes:     make(map[string]*StakeEntry),
		minStake:   minStake,
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// RegisterValidator admits a new validator with initialStake available
// and full reputation. Fails InsufficientStake below the configured
// minimum and ConfigError for a commission above 20%.
func (l *Ledger) RegisterValidator(id, address string, initialStake uint64, commission uint8) error {
	if initialStake < l.minStake {
		return consensuserrors.InsufficientStake(initialStake, l.minStake)
	}
	if commission > 20 {
		return consensuserrors.ConfigError("commission must be <= 20%")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.validators[id] = &Validator{
		ID:             id,
		Address:        address,
		Stake:          initialStake,
		AvailableStake: initialStake,
		Reputation:     100,
		IsActive:       true,
		Commission:     commission,
		LastActivity:   nowMillis(),
	}
	return nil
}

// DelegateStake records a delegator's stake toward an active validator.
// Fails if amount is below MinDelegationAmount or the validator is
// missing/inactive.
func (l *Ledger) DelegateStake(validatorID, delegator string, amount, lockupSeconds uint64) error {
	if amount < MinDelegationAmount {
		return consensuserrors.InsufficientStake(amount, MinDelegationAmount)
	}

	l.mu.RLock()
	validator, ok := l.validators[validatorID]
	l.mu.RUnlock()
	if !ok {
		return consensuserrors.ValidatorNotFound(validatorID)
	}
	if !validator.IsActive {
		return consensuserrors.InvalidVote("validator is not active")
	}

	entry := &StakeEntry{
		ValidatorID:   validatorID,
		Delegator:     delegator,
		Amount:        amount,
		Timestamp:     nowMillis(),
		LockupSeconds: lockupSeconds,
		Status:        StakeActive,
	}

	l.stakesMu.Lock()
	l.stakes[validatorID+":"+delegator] = entry
	l.stakesMu.Unlock()
	return nil
}

// LockStake moves amount from a validator's available stake to locked
// stake, the nothing-at-stake defense applied while a validator
// participates in a committee.
func (l *Ledger) LockStake(validatorID string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	validator, ok := l.validators[validatorID]
	if !ok {
		return consensuserrors.ValidatorNotFound(validatorID)
	}
	if validator.AvailableStake < amount {
		return consensuserrors.InsufficientStake(validator.AvailableStake, amount)
	}
	validator.AvailableStake -= amount
	validator.LockedStake += amount
	return nil
}

// UnlockStake returns all of a validator's currently locked stake to
// available, used once a committee round concludes.
func (l *Ledger) UnlockStake(validatorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	validator, ok := l.validators[validatorID]
	if !ok {
		return consensuserrors.ValidatorNotFound(validatorID)
	}
	validator.AvailableStake += validator.LockedStake
	validator.LockedStake = 0
	return nil
}

// BeginUnbonding starts the unbonding clock for amount of a validator's
// available stake and deactivates the validator; CompleteUnbonding does
// not reactivate it. Fails if the validator is already unbonding or
// lacks sufficient available stake.
func (l *Ledger) BeginUnbonding(validatorID string, amount uint64, currentEpoch uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	validator, ok := l.validators[validatorID]
	if !ok {
		return consensuserrors.ValidatorNotFound(validatorID)
	}
	if validator.UnlockEpoch != nil {
		return consensuserrors.ConfigError("validator is already unbonding")
	}
	if validator.AvailableStake < amount {
		return consensuserrors.InsufficientStake(validator.AvailableStake, amount)
	}

	unlockEpoch := currentEpoch + UnbondingPeriodEpochs
	validator.AvailableStake -= amount
	validator.LockedStake += amount
	validator.UnlockEpoch = &unlockEpoch
	validator.IsActive = false
	return nil
}

// CompleteUnbonding withdraws a validator's unbonded stake once the
// unbonding period has elapsed, returning the withdrawn amount. Fails
// if the validator isn't unbonding or the period hasn't elapsed.
func (l *Ledger) CompleteUnbonding(validatorID string, currentEpoch uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	validator, ok := l.validators[validatorID]
	if !ok {
		return 0, consensuserrors.ValidatorNotFound(validatorID)
	}
	if validator.UnlockEpoch == nil {
		return 0, consensuserrors.ConfigError("validator is not unbonding")
	}
	if currentEpoch < *validator.UnlockEpoch {
		return 0, consensuserrors.ConfigError("unbonding period not complete")
	}

	unbonded := validator.LockedStake
	validator.Stake -= unbonded
	validator.LockedStake = 0
	validator.UnlockEpoch = nil
	return unbonded, nil
}

// SlashValidator punishes a validator for offense at the severity the
// offense kind implies. Returns the absolute amount of stake removed,
// so callers can roll it into their own slashed-stake totals.
func (l *Ledger) SlashValidator(validatorID string, offense Offense, evidence string) (uint64, error) {
	return l.SlashValidatorWithSeverity(validatorID, offense, severityFor(offense), evidence)
}

// SlashValidatorWithSeverity punishes a validator at an explicitly
// classified severity, for callers that have already graded the
// offense — the Byzantine detector files equivocation as Major while
// double voting and double signing are Critical, all under the same
// offense kind. Reduces stake by the severity's slash rate (saturating
// at zero), reduces reputation, deactivates the validator if stake
// falls below the minimum, and records a SlashingEvent.
func (l *Ledger) SlashValidatorWithSeverity(validatorID string, offense Offense, severity Severity, evidence string) (uint64, error) {
	l.mu.Lock()
	validator, ok := l.validators[validatorID]
	if !ok {
		l.mu.Unlock()
		return 0, consensuserrors.ValidatorNotFound(validatorID)
	}

	rate := severity.slashRate()
	slashAmount := uint64(float64(validator.Stake) * rate)
	if slashAmount > validator.Stake {
		slashAmount = validator.Stake
	}
	validator.Stake -= slashAmount
	validator.TotalPenalties += slashAmount

	// Locked stake is what backed the validator's current round
	// participation, so it absorbs the slash first; available stake
	// only covers what locked can't, keeping locked+available from
	// drifting above the post-slash Stake.
	fromLocked := slashAmount
	if fromLocked > validator.LockedStake {
		fromLocked = validator.LockedStake
	}
	validator.LockedStake -= fromLocked
	fromAvailable := slashAmount - fromLocked
	if fromAvailable > validator.AvailableStake {
		fromAvailable = validator.AvailableStake
	}
	validator.AvailableStake -= fromAvailable

	penalty := severity.reputationPenalty()
	validator.Reputation = utils.ClampU8(int(validator.Reputation)-int(penalty), 0, 100)

	if validator.Stake < l.minStake {
		validator.IsActive = false
	}
	l.mu.Unlock()

	event := SlashingEvent{
		ID:          uuid.NewString(),
		ValidatorID: validatorID,
		Offense:     offense,
		Severity:    severity,
		Rate:        rate,
		Amount:      slashAmount,
		Timestamp:   nowMillis(),
		Evidence:    evidence,
	}
	l.slashMu.Lock()
	l.slashingEvents = append(l.slashingEvents, event)
	l.slashMu.Unlock()
	return slashAmount, nil
}

// DistributeRewards splits the fixed per-epoch reward pool across
// active validators weighted by sqrt(stake) and an emotional-score
// multiplier, then splits each validator's share between the
// validator's commission and its delegators.
func (l *Ledger) DistributeRewards(epoch uint64, validatorScores map[string]uint8) RewardDistribution {
	l.mu.RLock()
	var totalStakeWeight float64
	for _, v := range l.validators {
		if v.IsActive {
			totalStakeWeight += utils.StakeWeight(v.Stake)
		}
	}

	validatorRewards := make(map[string]uint64, len(validatorScores))
	delegatorRewards := make(map[string]uint64, len(validatorScores))

	for validatorID, score := range validatorScores {
		validator, ok := l.validators[validatorID]
		if !ok || !validator.IsActive || totalStakeWeight == 0 {
			continue
		}

		stakeWeight := utils.StakeWeight(validator.Stake)
		baseReward := (stakeWeight / totalStakeWeight) * float64(baseRewardPool)
		multiplier := utils.EmotionalMultiplier(score, rewardThreshold)

		totalReward := uint64(baseReward * multiplier)
		commissionAmount := (totalReward * uint64(validator.Commission)) / 100
		validatorRewards[validatorID] = commissionAmount
		delegatorRewards[validatorID] = totalReward - commissionAmount
	}
	l.mu.RUnlock()

	distribution := RewardDistribution{
		Epoch:            epoch,
		Timestamp:        nowMillis(),
		TotalRewards:     baseRewardPool,
		ValidatorRewards: validatorRewards,
		DelegatorRewards: delegatorRewards,
	}

	l.rewardsMu.Lock()
	l.rewardHistory = append(l.rewardHistory, distribution)
	l.rewardsMu.Unlock()

	return distribution
}

// GetValidator returns a copy of the validator record for id, if known.
func (l *Ledger) GetValidator(id string) (Validator, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.validators[id]
	if !ok {
		return Validator{}, false
	}
	return *v, true
}

// GetAllValidators returns a snapshot of every registered validator.
func (l *Ledger) GetAllValidators() []Validator {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Validator, 0, len(l.validators))
	for _, v := range l.validators {
		out = append(out, *v)
	}
	return out
}

// GetSlashingEvents returns every slashing event recorded so far.
func (l *Ledger) GetSlashingEvents() []SlashingEvent {
	l.slashMu.RLock()
	defer l.slashMu.RUnlock()
	out := make([]SlashingEvent, len(l.slashingEvents))
	copy(out, l.slashingEvents)
	return out
}

// GetRewardHistory returns every reward distribution recorded so far.
func (l *Ledger) GetRewardHistory() []RewardDistribution {
	l.rewardsMu.RLock()
	defer l.rewardsMu.RUnlock()
	out := make([]RewardDistribution, len(l.rewardHistory))
	copy(out, l.rewardHistory)
	return out
}

// ActiveValidatorCount returns how many registered validators are
// currently active.
func (l *Ledger) ActiveValidatorCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, v := range l.validators {
		if v.IsActive {
			count++
		}
	}
	return count
}

// TotalStake returns the sum of stake across every registered
// validator, used by the checkpoint manager's quorum-stake gate.
func (l *Ledger) TotalStake() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, v := range l.validators {
		total += v.Stake
	}
	return total
}
