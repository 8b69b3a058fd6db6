// Package consensus implements the Proof of Emotion consensus engine:
// the five-phase epoch state machine (assessment, committee selection,
// proposal, voting, finalization) and the configuration, state, and
// metrics types it exposes.
package consensus

// Protocol-level constants shared by every node on the network.
const (
	// Ticker is the symbol of the native token.
	Ticker = "POE"
	// ProtocolVersion identifies the consensus protocol revision.
	ProtocolVersion = "1.0.0"
	// MinValidatorStake is the protocol default minimum stake to
	// register as a validator.
	MinValidatorStake = 10_000
	// MaxCommitteeSize caps how many validators a committee may hold.
	MaxCommitteeSize = 101
	// DefaultEmotionalThreshold is the default eligibility score gate.
	DefaultEmotionalThreshold = 75
	// DefaultByzantineThreshold is the default quorum percentage.
	DefaultByzantineThreshold = 67
	// DefaultEpochDurationMs is the default epoch tick interval.
	DefaultEpochDurationMs = 30_000
)

// Config holds every tunable parameter of an epoch. Fields carry yaml
// tags so internal/config can load a Config directly from file.
type Config struct {
	EpochDurationMs     uint64 `yaml:"epoch_duration_ms"`
	EmotionalThreshold  uint8  `yaml:"emotional_threshold"`
	ByzantineThreshold  uint8  `yaml:"byzantine_threshold"`
	CommitteeSize       int    `yaml:"committee_size"`
	MinimumStake        uint64 `yaml:"minimum_stake"`
	VotingTimeoutMs     uint64 `yaml:"voting_timeout_ms"`
	ProposalTimeoutMs   uint64 `yaml:"proposal_timeout_ms"`
	FinalityTimeoutMs   uint64 `yaml:"finality_timeout_ms"`
	CheckpointInterval  uint64 `yaml:"checkpoint_interval"`
}

// DefaultConfig returns the protocol defaults: a 30-second epoch, the
// standard emotional and Byzantine thresholds, and a 21-member
// committee.
func DefaultConfig() Config {
	return Config{
		EpochDurationMs:    DefaultEpochDurationMs,
		EmotionalThreshold: DefaultEmotionalThreshold,
		ByzantineThreshold: DefaultByzantineThreshold,
		CommitteeSize:      21,
		MinimumStake:       MinValidatorStake,
		VotingTimeoutMs:    8_000,
		ProposalTimeoutMs:  10_000,
		FinalityTimeoutMs:  2_000,
		CheckpointInterval: 100,
	}
}

// State is a point-in-time snapshot of the engine's observable
// consensus state.
type State struct {
	CurrentEpoch        uint64
	NetworkHealth       uint8
	ConsensusStrength   uint8
	EmotionalFitness    uint8
	ParticipationRate   uint8
	LastFinalizedHeight uint64
	PendingTransactions int
	TotalValidators     int
	ActiveValidators    int
}

// Metrics accumulates epoch-level counters and rolling averages across
// the engine's lifetime.
type Metrics struct {
	TotalEpochs           uint64
	SuccessfulEpochs      uint64
	FailedEpochs          uint64
	AverageDurationMs     uint64
	AverageEmotionalScore uint8
	ByzantineFailures     uint64
	BlocksFinalized       uint64
	TransactionsProcessed uint64
	RewardsDistributed    uint64
	StakeSlashed          uint64
}
