package fork

import (
	"errors"
	"testing"

	"github.com/empower1/proof-of-emotion/internal/consensuserrors"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

func block(height uint64, hash string, emotionalScore, consensusStrength uint8, timestamp int64) *poetypes.Block {
	return &poetypes.Block{
		Header: poetypes.BlockHeader{
			Height:            height,
			EmotionalScore:    emotionalScore,
			ConsensusStrength: consensusStrength,
			Timestamp:         timestamp,
		},
		Hash: hash,
	}
}

func TestRecordBlockNoForkOnFirstBlock(t *testing.T) {
	d := NewDetector()
	if err := d.RecordBlock(block(1, "hashA", 80, 90, 100)); err != nil {
		t.Fatalf("RecordBlock: %v", err)
	}
	if d.HasFork(1) {
		t.Error("single block at a height should not be a fork")
	}
	chain := d.GetCanonicalChain()
	if len(chain) != 1 || chain[0] != "hashA" {
		t.Errorf("canonical chain = %v, want [hashA]", chain)
	}
}

func TestRecordBlockDetectsFork(t *testing.T) {
	d := NewDetector()
	d.RecordBlock(block(1, "hashA", 80, 90, 100))
	err := d.RecordBlock(block(1, "hashB", 70, 85, 105))

	if err == nil {
		t.Fatal("expected ForkDetected error for a second distinct hash at the same height")
	}
	var target *consensuserrors.ConsensusError
	if !errors.As(err, &target) || target.Kind != consensuserrors.KindForkDetected {
		t.Errorf("expected ForkDetected kind, got %v", err)
	}
	if !d.HasFork(1) {
		t.Error("HasFork should report true once two hashes are recorded at a height")
	}
}

func TestRecordBlockIdempotentForSameHash(t *testing.T) {
	d := NewDetector()
	d.RecordBlock(block(1, "hashA", 80, 90, 100))
	if err := d.RecordBlock(block(1, "hashA", 80, 90, 100)); err != nil {
		t.Errorf("re-recording the same hash at the same height should not error: %v", err)
	}
	if d.HasFork(1) {
		t.Error("repeated identical hash should not count as a fork")
	}
}

func TestResolveForkPrefersHighestEmotionalScore(t *testing.T) {
	d := NewDetector()
	d.RecordBlock(block(1, "hashA", 70, 99, 100))
	d.RecordBlock(block(1, "hashB", 90, 50, 200))

	winner, err := d.ResolveFork(1)
	if err != nil {
		t.Fatalf("ResolveFork: %v", err)
	}
	if winner != "hashB" {
		t.Errorf("winner = %s, want hashB (highest emotional score)", winner)
	}

	forks := d.GetForks()
	if len(forks) != 1 || forks[0].WinningHash != "hashB" || forks[0].ResolutionMethod != "emotional_score_priority" {
		t.Errorf("unexpected fork record: %+v", forks)
	}
}

func TestResolveForkTieOnScoreAndStrengthBreaksOnTimestamp(t *testing.T) {
	d := NewDetector()
	d.RecordBlock(block(1, "hashZ", 80, 90, 200))
	d.RecordBlock(block(1, "hashA", 80, 90, 100))

	winner, err := d.ResolveFork(1)
	if err != nil {
		t.Fatalf("ResolveFork: %v", err)
	}
	if winner != "hashA" {
		t.Errorf("winner = %s, want hashA (earliest timestamp)", winner)
	}
}

func TestResolveForkFullyTiedFallsBackToHash(t *testing.T) {
	d := NewDetector()
	d.RecordBlock(block(1, "hashZ", 80, 90, 100))
	d.RecordBlock(block(1, "hashA", 80, 90, 100))

	winner, err := d.ResolveFork(1)
	if err != nil {
		t.Fatalf("ResolveFork: %v", err)
	}
	if winner != "hashA" {
		t.Errorf("winner = %s, want hashA (lexicographically smallest as final tie-break)", winner)
	}
}

func TestResolveForkIsDeterministicRegardlessOfInsertOrder(t *testing.T) {
	d1 := NewDetector()
	d1.RecordBlock(block(1, "hashA", 70, 99, 100))
	d1.RecordBlock(block(1, "hashB", 90, 50, 200))
	w1, _ := d1.ResolveFork(1)

	d2 := NewDetector()
	d2.RecordBlock(block(1, "hashB", 90, 50, 200))
	d2.RecordBlock(block(1, "hashA", 70, 99, 100))
	w2, _ := d2.ResolveFork(1)

	if w1 != w2 {
		t.Errorf("resolution should be independent of insertion order: %s != %s", w1, w2)
	}
}

func TestResolveForkErrorsForUnknownHeight(t *testing.T) {
	d := NewDetector()
	if _, err := d.ResolveFork(99); err == nil {
		t.Error("expected error resolving a height with no recorded blocks")
	}
}

func TestCleanupOldForksPrunesBelowCutoff(t *testing.T) {
	d := NewDetector()
	d.RecordBlock(block(1, "hashA", 80, 90, 100))
	d.RecordBlock(block(1, "hashB", 70, 85, 105))
	d.RecordBlock(block(100, "hashC", 80, 90, 100))

	d.CleanupOldForks(150, 10)

	if d.HasFork(1) {
		t.Error("fork at height 1 should have been pruned")
	}
	forks := d.GetForks()
	for _, f := range forks {
		if f.Height == 1 {
			t.Error("fork record for height 1 should have been pruned")
		}
	}
}
