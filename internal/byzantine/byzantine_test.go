package byzantine

import (
	"testing"

	"github.com/empower1/proof-of-emotion/internal/poetypes"
	"github.com/empower1/proof-of-emotion/internal/staking"
)

func TestRecordVoteAcceptsNonConflicting(t *testing.T) {
	d := NewDetector()
	vote := poetypes.Vote{ValidatorID: "v1", BlockHash: "hash1", Epoch: 1, Approved: true}
	if _, err := d.RecordVote(vote); err != nil {
		t.Fatalf("RecordVote: %v", err)
	}
	if len(d.GetSlashingEvents()) != 0 {
		t.Error("a single vote should not produce a slashing event")
	}
}

func TestRecordVoteDetectsDoubleVoting(t *testing.T) {
	d := NewDetector()
	base := poetypes.Vote{ValidatorID: "v1", BlockHash: "hash1", Epoch: 1}

	approve := base
	approve.Approved = true
	if _, err := d.RecordVote(approve); err != nil {
		t.Fatalf("first vote: %v", err)
	}

	reject := base
	reject.Approved = false
	event, err := d.RecordVote(reject)
	if err == nil {
		t.Error("expected double-voting error for conflicting votes on same block/epoch")
	}
	if event == nil || event.Severity != staking.SeverityCritical {
		t.Errorf("double voting should be classified critical, got %+v", event)
	}

	events := d.GetSlashingEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 slashing event, got %d", len(events))
	}
}

func TestRecordVoteDetectsEquivocation(t *testing.T) {
	d := NewDetector()
	first := poetypes.Vote{ValidatorID: "v1", BlockHash: "hashA", Epoch: 1, Approved: true}
	second := poetypes.Vote{ValidatorID: "v1", BlockHash: "hashB", Epoch: 1, Approved: true}

	if _, err := d.RecordVote(first); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	event, err := d.RecordVote(second)
	if err == nil {
		t.Error("expected equivocation error for votes on different blocks in same epoch")
	}
	if event == nil || event.Severity != staking.SeverityMajor {
		t.Errorf("equivocation should be classified major, got %+v", event)
	}
}

func TestRecordProposalDetectsDoubleSigning(t *testing.T) {
	d := NewDetector()
	if _, err := d.RecordProposal("v1", 10, "hashA"); err != nil {
		t.Fatalf("first proposal: %v", err)
	}
	event, err := d.RecordProposal("v1", 10, "hashB")
	if err == nil {
		t.Error("expected double-signing error for two blocks proposed at same height")
	}
	if event == nil || event.Severity != staking.SeverityCritical {
		t.Errorf("double signing should be classified critical, got %+v", event)
	}

	events := d.GetSlashingEvents()
	if len(events) != 1 || events[0].ValidatorID != "v1" {
		t.Errorf("unexpected slashing events: %+v", events)
	}
}

func TestRecordProposalAllowsSameBlockTwice(t *testing.T) {
	d := NewDetector()
	if _, err := d.RecordProposal("v1", 10, "hashA"); err != nil {
		t.Fatalf("first proposal: %v", err)
	}
	if _, err := d.RecordProposal("v1", 10, "hashA"); err != nil {
		t.Error("re-recording the identical proposal should not be flagged as double signing")
	}
}

func TestDetectDoubleVotingQuery(t *testing.T) {
	d := NewDetector()
	d.RecordVote(poetypes.Vote{ValidatorID: "v1", BlockHash: "h", Epoch: 1, Approved: true})
	d.RecordVote(poetypes.Vote{ValidatorID: "v1", BlockHash: "h", Epoch: 1, Approved: false})

	event, found := d.DetectDoubleVoting("v1", 1)
	if !found {
		t.Fatal("expected double voting to be detectable after the fact")
	}
	if event.ValidatorID != "v1" {
		t.Errorf("event validator = %s, want v1", event.ValidatorID)
	}

	if _, found := d.DetectDoubleVoting("v1", 2); found {
		t.Error("no double voting should be detected in an epoch with no conflicting votes")
	}
}

func TestDetectEquivocationQuery(t *testing.T) {
	d := NewDetector()
	d.RecordVote(poetypes.Vote{ValidatorID: "v1", BlockHash: "hashA", Epoch: 3, Approved: true})
	d.RecordVote(poetypes.Vote{ValidatorID: "v1", BlockHash: "hashB", Epoch: 3, Approved: true})

	event, found := d.DetectEquivocation("v1")
	if !found {
		t.Fatal("expected equivocation to be detectable after the fact")
	}
	if event.Severity != staking.SeverityMajor {
		t.Errorf("equivocation severity = %s, want major", event.Severity)
	}

	if _, found := d.DetectEquivocation("v2"); found {
		t.Error("a validator with no votes should not be flagged")
	}
}

func TestDetectDoubleSigningQuery(t *testing.T) {
	d := NewDetector()
	d.RecordProposal("v1", 7, "hashA")
	d.RecordProposal("v1", 7, "hashB")

	event, found := d.DetectDoubleSigning("v1", 7)
	if !found {
		t.Fatal("expected double signing to be detectable after the fact")
	}
	if event.Severity != staking.SeverityCritical {
		t.Errorf("double-signing severity = %s, want critical", event.Severity)
	}

	if _, found := d.DetectDoubleSigning("v1", 8); found {
		t.Error("no double signing should be detected at a height with one proposal")
	}
}

func TestCleanupOldDataDropsStaleEpochs(t *testing.T) {
	d := NewDetector()
	d.RecordVote(poetypes.Vote{ValidatorID: "v1", BlockHash: "h", Epoch: 1, Approved: true})
	d.RecordVote(poetypes.Vote{ValidatorID: "v1", BlockHash: "h", Epoch: 100, Approved: true})

	d.CleanupOldData(150, 10)

	if _, exists := d.votes[voteKey{validatorID: "v1", epoch: 1}]; exists {
		t.Error("epoch 1 vote record should have been cleaned up")
	}
	if _, exists := d.votes[voteKey{validatorID: "v1", epoch: 100}]; !exists {
		t.Error("epoch 100 vote record should still be present")
	}
}
