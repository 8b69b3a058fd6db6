// Package checkpoint implements quorum-signed state snapshots used for
// crash recovery and fast sync: a checkpoint pins a finalized height,
// block hash, and state root behind validator signatures covering at
// least the Byzantine stake threshold.
package checkpoint

import (
	"fmt"
	"sync"

	"github.com/empower1/proof-of-emotion/internal/consensuserrors"
	"github.com/empower1/proof-of-emotion/internal/poecrypto"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

// ValidatorSignature is one validator's signature over a checkpoint's
// canonical payload, carried alongside the stake it held at sign time.
type ValidatorSignature struct {
	ValidatorID string
	Stake       uint64
	Signature   string
	PublicKey   string
}

// Checkpoint is a finalized, quorum-signed snapshot of chain state at
// a specific height.
type Checkpoint struct {
	Height              uint64
	BlockHash           string
	Epoch               uint64
	Timestamp           int64
	ValidatorSignatures []ValidatorSignature
	TotalStakeSigned    uint64
	StateRoot           string
}

// Statistics summarizes the checkpoint manager's history.
type Statistics struct {
	TotalCheckpoints       int
	LatestCheckpointHeight uint64
	CheckpointInterval     uint64
	AverageStakeSigned     uint64
	TotalNetworkStake      uint64
}

// Manager creates, verifies, and prunes checkpoints on a fixed height
// interval, gating creation on a minimum signed-stake percentage once
// the total network stake is known.
type Manager struct {
	mu                     sync.RWMutex
	checkpoints            []Checkpoint
	checkpointInterval     uint64
	minimumStakePercentage uint64
	totalNetworkStake      uint64
}

// NewManager constructs a checkpoint manager creating a checkpoint
// every checkpointInterval blocks, requiring minimumStakePercentage of
// total network stake to sign each one — callers pass the engine's
// configured Byzantine threshold here rather than an independent
// constant.
func NewManager(checkpointInterval uint64, minimumStakePercentage uint64) *Manager {
	return &Manager{checkpointInterval: checkpointInterval, minimumStakePercentage: minimumStakePercentage}
}

// ShouldCreateCheckpoint reports whether height falls on a checkpoint
// boundary.
func (m *Manager) ShouldCreateCheckpoint(height uint64) bool {
	if m.checkpointInterval == 0 {
		return false
	}
	return height%m.checkpointInterval == 0
}

// CreateCheckpoint builds, verifies, and stores a checkpoint for block
// signed by validatorSignatures. The stake-percentage gate is skipped
// when the total network stake hasn't been reported yet via
// UpdateTotalStake.
func (m *Manager) CreateCheckpoint(block *poetypes.Block, validatorSignatures []ValidatorSignature) (*Checkpoint, error) {
	var totalStakeSigned uint64
	for _, vs := range validatorSignatures {
		totalStakeSigned += vs.Stake
	}

	m.mu.RLock()
	totalStake := m.totalNetworkStake
	minPercentage := m.minimumStakePercentage
	m.mu.RUnlock()

	if totalStake > 0 {
		stakePercentage := (totalStakeSigned * 100) / totalStake
		if stakePercentage < minPercentage {
			return nil, consensuserrors.ConfigError(fmt.Sprintf(
				"insufficient stake for checkpoint: %d%% < %d%%", stakePercentage, minPercentage))
		}
	}

	cp := Checkpoint{
		Height:              block.Header.Height,
		BlockHash:           block.Hash,
		Epoch:               block.Header.Epoch,
		Timestamp:           poecrypto.NowMillis(),
		ValidatorSignatures: validatorSignatures,
		TotalStakeSigned:    totalStakeSigned,
		StateRoot:           block.Header.MerkleRoot,
	}

	valid, err := m.VerifyCheckpoint(&cp)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, consensuserrors.SignatureVerificationFailed("checkpoint signature set failed verification")
	}

	m.mu.Lock()
	m.checkpoints = append(m.checkpoints, cp)
	m.mu.Unlock()

	return &cp, nil
}

// VerifyCheckpoint checks every validator signature over the
// checkpoint's canonical payload and, when total stake is known, that
// the signed stake meets the manager's minimum stake percentage.
func (m *Manager) VerifyCheckpoint(cp *Checkpoint) (bool, error) {
	if len(cp.ValidatorSignatures) == 0 {
		return false, consensuserrors.SignatureVerificationFailed("no validator signatures in checkpoint")
	}

	payload := signingPayload(cp.Height, cp.BlockHash, cp.Epoch, cp.StateRoot)

	for _, vs := range cp.ValidatorSignatures {
		ok, err := poecrypto.Verify([]byte(payload), vs.Signature, vs.PublicKey)
		if err != nil {
			return false, consensuserrors.SignatureVerificationFailed(
				fmt.Sprintf("validator %s: %s", vs.ValidatorID, err))
		}
		if !ok {
			return false, nil
		}
	}

	m.mu.RLock()
	totalStake := m.totalNetworkStake
	minPercentage := m.minimumStakePercentage
	m.mu.RUnlock()

	if totalStake > 0 {
		stakePercentage := (cp.TotalStakeSigned * 100) / totalStake
		if stakePercentage < minPercentage {
			return false, nil
		}
	}

	return true, nil
}

// SignCheckpoint signs the canonical checkpoint payload for the given
// fields with keyPair, for use by a validator contributing its
// ValidatorSignature to a checkpoint under construction.
func SignCheckpoint(height uint64, blockHash string, epoch uint64, stateRoot string, keyPair *poecrypto.KeyPair) (string, error) {
	payload := signingPayload(height, blockHash, epoch, stateRoot)
	sig, err := keyPair.Sign([]byte(payload))
	if err != nil {
		return "", consensuserrors.Internal(fmt.Sprintf("failed to sign checkpoint: %s", err))
	}
	return sig, nil
}

func signingPayload(height uint64, blockHash string, epoch uint64, stateRoot string) string {
	return fmt.Sprintf("checkpoint:%d:%s:%d:%s", height, blockHash, epoch, stateRoot)
}

// GetLatestCheckpoint returns the most recently created checkpoint, if
// any.
func (m *Manager) GetLatestCheckpoint() (Checkpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return m.checkpoints[len(m.checkpoints)-1], true
}

// GetCheckpointAtHeight returns the checkpoint created at height, if
// any.
func (m *Manager) GetCheckpointAtHeight(height uint64) (Checkpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cp := range m.checkpoints {
		if cp.Height == height {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// GetAllCheckpoints returns every stored checkpoint.
func (m *Manager) GetAllCheckpoints() []Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checkpoint, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}

// UpdateTotalStake records the current total network stake, used by
// CreateCheckpoint and VerifyCheckpoint to compute signed-stake
// percentages.
func (m *Manager) UpdateTotalStake(totalStake uint64) {
	m.mu.Lock()
	m.totalNetworkStake = totalStake
	m.mu.Unlock()
}

// PruneOldCheckpoints keeps only the most recent keepCount
// checkpoints.
func (m *Manager) PruneOldCheckpoints(keepCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.checkpoints) > keepCount {
		remove := len(m.checkpoints) - keepCount
		m.checkpoints = append([]Checkpoint(nil), m.checkpoints[remove:]...)
	}
}

// GetStatistics summarizes the manager's checkpoint history.
func (m *Manager) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		TotalCheckpoints:   len(m.checkpoints),
		CheckpointInterval: m.checkpointInterval,
		TotalNetworkStake:  m.totalNetworkStake,
	}
	if len(m.checkpoints) > 0 {
		stats.LatestCheckpointHeight = m.checkpoints[len(m.checkpoints)-1].Height
		var sum uint64
		for _, cp := range m.checkpoints {
			sum += cp.TotalStakeSigned
		}
		stats.AverageStakeSigned = sum / uint64(len(m.checkpoints))
	}
	return stats
}

// GetBlocksSinceCheckpoint returns the heights that must be replayed
// to bring state from cp up to currentHeight.
func GetBlocksSinceCheckpoint(cp *Checkpoint, currentHeight uint64) []uint64 {
	if currentHeight <= cp.Height {
		return nil
	}
	heights := make([]uint64, 0, currentHeight-cp.Height)
	for h := cp.Height + 1; h <= currentHeight; h++ {
		heights = append(heights, h)
	}
	return heights
}
