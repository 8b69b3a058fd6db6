// Package health derives liveness, readiness, and diagnostic health
// reports from a snapshot of consensus engine state, independent of
// the engine itself so it can be unit tested against fabricated
// snapshots.
package health

import (
	"fmt"
	"strings"
	"time"
)

// Version is the software version reported in health checks.
const Version = "0.1.0"

// State categorizes overall engine health.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateCritical State = "critical"
)

// IssueKind identifies which specific health issue was detected.
type IssueKind string

const (
	IssueLowConsensus           IssueKind = "low_consensus"
	IssueLowParticipation       IssueKind = "low_participation"
	IssueStaleChain             IssueKind = "stale_chain"
	IssueInsufficientValidators IssueKind = "insufficient_validators"
	IssueTransactionBacklog     IssueKind = "transaction_backlog"
	IssueNetworkUnresponsive    IssueKind = "network_unresponsive"
	IssueHighByzantineRate      IssueKind = "high_byzantine_rate"
)

// Issue is a single detected health problem, carrying whichever value
// triggered it.
type Issue struct {
	Kind  IssueKind
	Value float64
}

func (i Issue) String() string {
	switch i.Kind {
	case IssueLowConsensus:
		return fmt.Sprintf("Low consensus (%d%%)", int(i.Value))
	case IssueLowParticipation:
		return fmt.Sprintf("Low participation (%d%%)", int(i.Value))
	case IssueStaleChain:
		return fmt.Sprintf("Stale chain (epoch %d)", int(i.Value))
	case IssueInsufficientValidators:
		return fmt.Sprintf("Insufficient validators (%d)", int(i.Value))
	case IssueTransactionBacklog:
		return fmt.Sprintf("Transaction backlog (%d)", int(i.Value))
	case IssueNetworkUnresponsive:
		return "Network unresponsive"
	case IssueHighByzantineRate:
		return fmt.Sprintf("High Byzantine rate (%.1f%%)", i.Value*100.0)
	default:
		return string(i.Kind)
	}
}

// Snapshot is the subset of consensus engine state and metrics a
// health check reads. The engine fills this in from its own state and
// metrics without health importing the consensus package.
type Snapshot struct {
	CurrentEpoch        uint64
	ConsensusStrength   uint8
	TotalValidators     int
	ActiveValidators    int
	LastFinalizedHeight uint64
	PendingTransactions int
	ParticipationRate   uint8
	TotalEpochs         uint64
	ByzantineFailures   uint64
}

// Status is a point-in-time health report.
type Status struct {
	State               State
	Version             string
	UptimeSeconds       uint64
	CurrentEpoch        uint64
	ConsensusStrength   uint8
	ValidatorCount      int
	ActiveValidators    int
	LastFinalizedBlock  uint64
	PendingTransactions int
	ParticipationRate   uint8
	Issues              []Issue
	CheckedAt           int64
}

// FromSnapshot builds a Status from a consensus snapshot and the
// engine's start time (unix seconds).
func FromSnapshot(s Snapshot, startTimeSeconds int64) Status {
	var issues []Issue

	if s.ConsensusStrength < 67 {
		issues = append(issues, Issue{Kind: IssueLowConsensus, Value: float64(s.ConsensusStrength)})
	}
	if s.ParticipationRate < 50 {
		issues = append(issues, Issue{Kind: IssueLowParticipation, Value: float64(s.ParticipationRate)})
	}
	if s.LastFinalizedHeight == 0 && s.CurrentEpoch > 5 {
		issues = append(issues, Issue{Kind: IssueStaleChain, Value: float64(s.CurrentEpoch)})
	}
	if s.TotalValidators < 4 {
		issues = append(issues, Issue{Kind: IssueInsufficientValidators, Value: float64(s.TotalValidators)})
	}
	if s.PendingTransactions > 1000 {
		issues = append(issues, Issue{Kind: IssueTransactionBacklog, Value: float64(s.PendingTransactions)})
	}
	if s.TotalEpochs > 0 {
		byzantineRate := float64(s.ByzantineFailures) / float64(s.TotalEpochs)
		if byzantineRate > 0.1 {
			issues = append(issues, Issue{Kind: IssueHighByzantineRate, Value: byzantineRate})
		}
	}

	state := StateHealthy
	if len(issues) > 0 {
		hasUnresponsive := false
		for _, i := range issues {
			if i.Kind == IssueNetworkUnresponsive {
				hasUnresponsive = true
			}
		}
		if len(issues) <= 2 && !hasUnresponsive {
			state = StateDegraded
		} else {
			state = StateCritical
		}
	}

	now := time.Now().Unix()
	uptime := uint64(0)
	if now > startTimeSeconds {
		uptime = uint64(now - startTimeSeconds)
	}

	return Status{
		State:               state,
		Version:             Version,
		UptimeSeconds:       uptime,
		CurrentEpoch:        s.CurrentEpoch,
		ConsensusStrength:   s.ConsensusStrength,
		ValidatorCount:      s.TotalValidators,
		ActiveValidators:    s.ActiveValidators,
		LastFinalizedBlock:  s.LastFinalizedHeight,
		PendingTransactions: s.PendingTransactions,
		ParticipationRate:   s.ParticipationRate,
		Issues:              issues,
		CheckedAt:           now,
	}
}

func (s Status) IsHealthy() bool  { return s.State == StateHealthy }
func (s Status) IsDegraded() bool { return s.State == StateDegraded }
func (s Status) IsCritical() bool { return s.State == StateCritical }

// StatusMessage renders a human-readable summary of the status.
func (s Status) StatusMessage() string {
	switch s.State {
	case StateHealthy:
		return "All systems operational"
	case StateDegraded:
		return fmt.Sprintf("System degraded with %d issue(s): %s", len(s.Issues), s.issuesSummary())
	default:
		return fmt.Sprintf("System critical with %d issue(s): %s", len(s.Issues), s.issuesSummary())
	}
}

func (s Status) issuesSummary() string {
	parts := make([]string, len(s.Issues))
	for i, issue := range s.Issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, ", ")
}

// Liveness is the result of a liveness probe: true as long as the
// process can respond at all.
type Liveness struct {
	Alive     bool
	Timestamp int64
}

// NewLiveness builds a Liveness result stamped with the current time.
func NewLiveness() Liveness {
	return Liveness{Alive: true, Timestamp: time.Now().Unix()}
}

// Readiness is the result of a readiness probe: whether the engine
// should currently receive traffic.
type Readiness struct {
	Ready     bool
	Reason    string
	Timestamp int64
}

// ReadinessFromHealth derives a Readiness result from a Status; a
// critical engine is not ready.
func ReadinessFromHealth(status Status) Readiness {
	ready := !status.IsCritical()
	reason := ""
	if !ready {
		reason = status.StatusMessage()
	}
	return Readiness{Ready: ready, Reason: reason, Timestamp: status.CheckedAt}
}
