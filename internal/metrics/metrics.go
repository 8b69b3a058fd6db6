// Package metrics exports consensus engine counters, gauges, and
// histograms to a Prometheus registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// EpochObservation is a single epoch's outcome, pushed into Prometheus
// at the end of each tick. Counter fields are per-epoch increments, not
// running totals.
type EpochObservation struct {
	Succeeded             bool
	BlocksFinalized       uint64
	TransactionsProcessed uint64
	ActiveValidators      int
	DurationMs            uint64
	AverageEmotionalScore uint8
}

// PrometheusMetrics holds every metric the engine reports, registered
// against a single Registry at construction time.
type PrometheusMetrics struct {
	BlocksFinalized       prometheus.Counter
	TransactionsProcessed prometheus.Counter
	ByzantineDetected     prometheus.Counter
	VotesCast             prometheus.Counter
	EpochsCompleted       prometheus.Counter
	EpochsFailed          prometheus.Counter

	ActiveValidators      prometheus.Gauge
	CurrentEpoch          prometheus.Gauge
	CommitteeSize         prometheus.Gauge
	ConsensusStrength     prometheus.Gauge
	NetworkHealth         prometheus.Gauge
	ParticipationRate     prometheus.Gauge
	PendingTransactions   prometheus.Gauge
	LastFinalizedHeight   prometheus.Gauge

	BlockProposalDuration prometheus.Histogram
	VotingDuration        prometheus.Histogram
	EpochDuration         prometheus.Histogram
	EmotionalScores       prometheus.Histogram
	ConsensusStrengthHist prometheus.Histogram

	ValidatorStakes       *prometheus.GaugeVec
	ValidatorReputations  *prometheus.GaugeVec
	ByzantineEvents       *prometheus.CounterVec
}

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0}
var scoreBuckets = []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// New constructs and registers the full set of Proof of Emotion
// metrics against registry.
func New(registry *prometheus.Registry) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		BlocksFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poe_blocks_finalized_total",
			Help: "Total number of finalized blocks",
		}),
		TransactionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poe_transactions_processed_total",
			Help: "Total number of processed transactions",
		}),
		ByzantineDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poe_byzantine_detected_total",
			Help: "Total number of Byzantine behaviors detected",
		}),
		VotesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poe_votes_cast_total",
			Help: "Total number of votes cast",
		}),
		EpochsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poe_epochs_completed_total",
			Help: "Total number of successfully completed epochs",
		}),
		EpochsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "poe_epochs_failed_total",
			Help: "Total number of failed epochs",
		}),
		ActiveValidators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_active_validators",
			Help: "Current number of active validators",
		}),
		CurrentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_current_epoch",
			Help: "Current epoch number",
		}),
		CommitteeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_committee_size",
			Help: "Current committee size",
		}),
		ConsensusStrength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_consensus_strength",
			Help: "Current consensus strength (0-100)",
		}),
		NetworkHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_network_health",
			Help: "Network health percentage (0-100)",
		}),
		ParticipationRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_participation_rate",
			Help: "Validator participation rate (0-100)",
		}),
		PendingTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_pending_transactions",
			Help: "Number of pending transactions",
		}),
		LastFinalizedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "poe_last_finalized_height",
			Help: "Height of the last finalized block",
		}),
		BlockProposalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poe_block_proposal_duration_seconds",
			Help:    "Time taken to propose a block",
			Buckets: durationBuckets,
		}),
		VotingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poe_voting_duration_seconds",
			Help:    "Time taken for voting phase",
			Buckets: durationBuckets,
		}),
		EpochDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poe_epoch_duration_seconds",
			Help:    "Duration of each epoch",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		}),
		EmotionalScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poe_emotional_scores",
			Help:    "Distribution of emotional scores",
			Buckets: scoreBuckets,
		}),
		ConsensusStrengthHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "poe_consensus_strength_distribution",
			Help:    "Distribution of consensus strength values",
			Buckets: scoreBuckets,
		}),
		ValidatorStakes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poe_validator_stake",
			Help: "Stake amount per validator",
		}, []string{"validator_id"}),
		ValidatorReputations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "poe_validator_reputation",
			Help: "Reputation score per validator",
		}, []string{"validator_id"}),
		ByzantineEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poe_byzantine_events_total",
			Help: "Byzantine events by type",
		}, []string{"event_type", "validator_id"}),
	}

	collectors := []prometheus.Collector{
		m.BlocksFinalized, m.TransactionsProcessed, m.ByzantineDetected, m.VotesCast,
		m.EpochsCompleted, m.EpochsFailed, m.ActiveValidators, m.CurrentEpoch,
		m.CommitteeSize, m.ConsensusStrength, m.NetworkHealth, m.ParticipationRate,
		m.PendingTransactions, m.LastFinalizedHeight, m.BlockProposalDuration,
		m.VotingDuration, m.EpochDuration, m.EmotionalScores, m.ConsensusStrengthHist,
		m.ValidatorStakes, m.ValidatorReputations, m.ByzantineEvents,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// NewDefaultRegistry builds a fresh Registry with every Proof of
// Emotion metric registered against it.
func NewDefaultRegistry() (*prometheus.Registry, *PrometheusMetrics, error) {
	registry := prometheus.NewRegistry()
	m, err := New(registry)
	if err != nil {
		return nil, nil, err
	}
	return registry, m, nil
}

// ObserveEpoch pushes one epoch's outcome into the corresponding
// Prometheus metrics.
func (m *PrometheusMetrics) ObserveEpoch(o EpochObservation) {
	if o.Succeeded {
		m.EpochsCompleted.Inc()
	} else {
		m.EpochsFailed.Inc()
	}
	m.BlocksFinalized.Add(float64(o.BlocksFinalized))
	m.TransactionsProcessed.Add(float64(o.TransactionsProcessed))
	m.ActiveValidators.Set(float64(o.ActiveValidators))

	if o.DurationMs > 0 {
		m.EpochDuration.Observe(float64(o.DurationMs) / 1000.0)
	}
	if o.AverageEmotionalScore > 0 {
		m.EmotionalScores.Observe(float64(o.AverageEmotionalScore))
	}
}

// RecordByzantineEvent increments the Byzantine counters for a
// detected event type and offending validator.
func (m *PrometheusMetrics) RecordByzantineEvent(eventType, validatorID string) {
	m.ByzantineDetected.Inc()
	m.ByzantineEvents.WithLabelValues(eventType, validatorID).Inc()
}

// UpdateValidatorStake sets the stake gauge for validatorID.
func (m *PrometheusMetrics) UpdateValidatorStake(validatorID string, stake uint64) {
	m.ValidatorStakes.WithLabelValues(validatorID).Set(float64(stake))
}

// UpdateValidatorReputation sets the reputation gauge for validatorID.
func (m *PrometheusMetrics) UpdateValidatorReputation(validatorID string, reputation uint8) {
	m.ValidatorReputations.WithLabelValues(validatorID).Set(float64(reputation))
}

// ObserveBlockProposal records a block proposal's duration in seconds.
func (m *PrometheusMetrics) ObserveBlockProposal(durationSeconds float64) {
	m.BlockProposalDuration.Observe(durationSeconds)
}

// ObserveVoting records a voting phase's duration in seconds.
func (m *PrometheusMetrics) ObserveVoting(durationSeconds float64) {
	m.VotingDuration.Observe(durationSeconds)
}

// IncVotes increments the vote counter by count.
func (m *PrometheusMetrics) IncVotes(count uint64) {
	m.VotesCast.Add(float64(count))
}

// SetNetworkHealth sets the network health gauge.
func (m *PrometheusMetrics) SetNetworkHealth(health float64) {
	m.NetworkHealth.Set(health)
}

// SetCommitteeSize sets the committee size gauge.
func (m *PrometheusMetrics) SetCommitteeSize(size int) {
	m.CommitteeSize.Set(float64(size))
}

// SetPendingTransactions sets the pending transaction count gauge.
func (m *PrometheusMetrics) SetPendingTransactions(count int) {
	m.PendingTransactions.Set(float64(count))
}
