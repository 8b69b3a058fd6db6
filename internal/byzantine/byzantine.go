// Package byzantine implements synchronous detection of Byzantine
// validator behavior — double-voting, double-signing, and
// equivocation — against the vote and proposal streams the consensus
// engine records during each epoch.
package byzantine

import (
	"fmt"
	"sync"
	"time"

	"github.com/empower1/proof-of-emotion/internal/poetypes"
	"github.com/empower1/proof-of-emotion/internal/staking"
)

type voteKey struct {
	validatorID string
	epoch       uint64
}

type proposalKey struct {
	validatorID string
	height      uint64
}

type proposalEvidence struct {
	validatorID string
	height      uint64
	blockHash   string
	timestamp   int64
}

// Detector indexes votes by (validator, epoch) and proposals by
// (validator, height), detecting conflicting records synchronously at
// insertion time. Each index is a plain map guarded by its own mutex.
type Detector struct {
	votesMu sync.Mutex
	votes   map[voteKey][]poetypes.Vote

	proposalsMu sync.Mutex
	proposals   map[proposalKey][]proposalEvidence

	eventsMu sync.Mutex
	events   []staking.SlashingEvent
}

// NewDetector constructs an empty Byzantine detector.
func NewDetector() *Detector {
	return &Detector{
		votes:     make(map[voteKey][]poetypes.Vote),
		proposals: make(map[proposalKey][]proposalEvidence),
	}
}

// RecordVote stores vote and checks it against every prior vote from
// the same validator in the same epoch. A same-block conflicting
// approval is double-voting; a different-block vote in the same epoch
// is equivocation. Either produces a non-nil error plus the classified
// SlashingEvent, whose Severity the caller must honor when slashing —
// double voting is Critical while equivocation is only Major. The vote
// is still recorded so later detection sees the full history.
func (d *Detector) RecordVote(vote poetypes.Vote) (*staking.SlashingEvent, error) {
	key := voteKey{validatorID: vote.ValidatorID, epoch: vote.Epoch}

	d.votesMu.Lock()
	existing := d.votes[key]

	for _, prior := range existing {
		if prior.BlockHash == vote.BlockHash && prior.Approved != vote.Approved {
			d.votes[key] = append(existing, vote)
			d.votesMu.Unlock()
			event := d.recordSlash(doubleVoteEvent(vote.ValidatorID, vote.Epoch, len(existing)+1))
			return &event, fmt.Errorf("double voting detected for validator %s in epoch %d (event %s)", vote.ValidatorID, vote.Epoch, event.ID)
		}
		if prior.BlockHash != vote.BlockHash {
			d.votes[key] = append(existing, vote)
			d.votesMu.Unlock()
			event := d.recordSlash(equivocationEvent(vote.ValidatorID, vote.Epoch, len(existing)+1))
			return &event, fmt.Errorf("equivocation detected for validator %s in epoch %d (event %s)", vote.ValidatorID, vote.Epoch, event.ID)
		}
	}

	d.votes[key] = append(existing, vote)
	d.votesMu.Unlock()
	return nil, nil
}

// RecordProposal stores a (validatorID, height, blockHash) proposal
// record and checks it against every prior proposal from the same
// validator at the same height. A different block hash is double
// signing; the returned SlashingEvent carries its Critical severity.
func (d *Detector) RecordProposal(validatorID string, height uint64, blockHash string) (*staking.SlashingEvent, error) {
	key := proposalKey{validatorID: validatorID, height: height}
	evidence := proposalEvidence{
		validatorID: validatorID,
		height:      height,
		blockHash:   blockHash,
		timestamp:   time.Now().UnixMilli(),
	}

	d.proposalsMu.Lock()
	existing := d.proposals[key]
	for _, prior := range existing {
		if prior.blockHash != blockHash {
			d.proposals[key] = append(existing, evidence)
			d.proposalsMu.Unlock()
			event := d.recordSlash(doubleSignEvent(validatorID, height, len(existing)+1))
			return &event, fmt.Errorf("double signing detected for validator %s at height %d (event %s)", validatorID, height, event.ID)
		}
	}
	d.proposals[key] = append(existing, evidence)
	d.proposalsMu.Unlock()
	return nil, nil
}

// DetectDoubleVoting scans the recorded votes for validatorID in epoch
// and reports whether any pair conflicts on the same block — two votes
// with the same block hash but opposite approvals.
func (d *Detector) DetectDoubleVoting(validatorID string, epoch uint64) (staking.SlashingEvent, bool) {
	d.votesMu.Lock()
	votes := append([]poetypes.Vote(nil), d.votes[voteKey{validatorID: validatorID, epoch: epoch}]...)
	d.votesMu.Unlock()

	for i := 0; i < len(votes); i++ {
		for j := i + 1; j < len(votes); j++ {
			if votes[i].BlockHash == votes[j].BlockHash && votes[i].Approved != votes[j].Approved {
				return doubleVoteEvent(validatorID, epoch, len(votes)), true
			}
		}
	}
	return staking.SlashingEvent{}, false
}

// DetectEquivocation scans every epoch's recorded votes for validatorID
// and reports whether any epoch contains votes on two different block
// hashes.
func (d *Detector) DetectEquivocation(validatorID string) (staking.SlashingEvent, bool) {
	d.votesMu.Lock()
	defer d.votesMu.Unlock()

	for key, votes := range d.votes {
		if key.validatorID != validatorID {
			continue
		}
		for i := 0; i < len(votes); i++ {
			for j := i + 1; j < len(votes); j++ {
				if votes[i].BlockHash != votes[j].BlockHash {
					return equivocationEvent(validatorID, key.epoch, len(votes)), true
				}
			}
		}
	}
	return staking.SlashingEvent{}, false
}

// DetectDoubleSigning scans the recorded proposals for validatorID at
// height and reports whether two distinct block hashes were proposed.
func (d *Detector) DetectDoubleSigning(validatorID string, height uint64) (staking.SlashingEvent, bool) {
	d.proposalsMu.Lock()
	proposals := append([]proposalEvidence(nil), d.proposals[proposalKey{validatorID: validatorID, height: height}]...)
	d.proposalsMu.Unlock()

	for i := 0; i < len(proposals); i++ {
		for j := i + 1; j < len(proposals); j++ {
			if proposals[i].blockHash != proposals[j].blockHash {
				return doubleSignEvent(validatorID, height, len(proposals)), true
			}
		}
	}
	return staking.SlashingEvent{}, false
}

func (d *Detector) recordSlash(event staking.SlashingEvent) staking.SlashingEvent {
	d.eventsMu.Lock()
	d.events = append(d.events, event)
	d.eventsMu.Unlock()
	return event
}

func doubleVoteEvent(validatorID string, epoch uint64, voteCount int) staking.SlashingEvent {
	return staking.SlashingEvent{
		ID:          fmt.Sprintf("double-vote-%s-%d", validatorID, epoch),
		ValidatorID: validatorID,
		Offense:     staking.OffenseDoubleSigning,
		Severity:    staking.SeverityCritical,
		Rate:        0.15,
		Timestamp:   time.Now().UnixMilli(),
		Evidence:    fmt.Sprintf("double voting in epoch %d: %d conflicting votes on same block", epoch, voteCount),
	}
}

func equivocationEvent(validatorID string, epoch uint64, voteCount int) staking.SlashingEvent {
	return staking.SlashingEvent{
		ID:          fmt.Sprintf("equivocation-%s-%d", validatorID, epoch),
		ValidatorID: validatorID,
		Offense:     staking.OffenseDoubleSigning,
		Severity:    staking.SeverityMajor,
		Rate:        0.05,
		Timestamp:   time.Now().UnixMilli(),
		Evidence:    fmt.Sprintf("equivocation in epoch %d: voted on %d different blocks", epoch, voteCount),
	}
}

func doubleSignEvent(validatorID string, height uint64, proposalCount int) staking.SlashingEvent {
	return staking.SlashingEvent{
		ID:          fmt.Sprintf("double-sign-%s-%d", validatorID, height),
		ValidatorID: validatorID,
		Offense:     staking.OffenseDoubleSigning,
		Severity:    staking.SeverityCritical,
		Rate:        0.15,
		Timestamp:   time.Now().UnixMilli(),
		Evidence:    fmt.Sprintf("double signing at height %d: proposed %d different blocks", height, proposalCount),
	}
}

// GetSlashingEvents returns every Byzantine-behavior slashing event
// detected so far.
func (d *Detector) GetSlashingEvents() []staking.SlashingEvent {
	d.eventsMu.Lock()
	defer d.eventsMu.Unlock()
	out := make([]staking.SlashingEvent, len(d.events))
	copy(out, d.events)
	return out
}

// CleanupOldData drops vote records from epochs older than
// retentionEpochs behind currentEpoch, bounding the detector's memory
// footprint across a long-running chain.
func (d *Detector) CleanupOldData(currentEpoch, retentionEpochs uint64) {
	cutoff := uint64(0)
	if currentEpoch > retentionEpochs {
		cutoff = currentEpoch - retentionEpochs
	}

	d.votesMu.Lock()
	for key := range d.votes {
		if key.epoch < cutoff {
			delete(d.votes, key)
		}
	}
	d.votesMu.Unlock()
}
