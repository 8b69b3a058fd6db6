package pool

import (
	"fmt"
	"testing"
	"time"

	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

func testTx(hash string, ageMs int64) poetypes.Transaction {
	return poetypes.Transaction{
		Hash:      hash,
		From:      "alice",
		To:        "bob",
		Amount:    100,
		Fee:       1,
		Timestamp: time.Now().UnixMilli() - ageMs,
	}
}

func TestSubmitDeduplicatesByHash(t *testing.T) {
	p := New()
	p.Submit(testTx("h1", 0))
	p.Submit(testTx("h1", 0))

	if p.Count() != 1 {
		t.Errorf("Count = %d after duplicate submission, want 1", p.Count())
	}
}

func TestDrainPreservesSubmissionOrder(t *testing.T) {
	p := New()
	for i := 0; i < 5; i++ {
		p.Submit(testTx(fmt.Sprintf("h%d", i), 0))
	}

	drained := p.Drain()
	if len(drained) != 5 {
		t.Fatalf("Drain returned %d transactions, want 5", len(drained))
	}
	for i, tx := range drained {
		if want := fmt.Sprintf("h%d", i); tx.Hash != want {
			t.Errorf("drained[%d].Hash = %s, want %s", i, tx.Hash, want)
		}
	}
	if p.Count() != 0 {
		t.Errorf("Count after drain = %d, want 0", p.Count())
	}
}

func TestDrainCapsAtMaxDrainSize(t *testing.T) {
	p := New()
	for i := 0; i < MaxDrainSize+50; i++ {
		p.Submit(testTx(fmt.Sprintf("h%d", i), 0))
	}

	drained := p.Drain()
	if len(drained) != MaxDrainSize {
		t.Errorf("Drain returned %d transactions, want %d", len(drained), MaxDrainSize)
	}
	if p.Count() != 50 {
		t.Errorf("Count after capped drain = %d, want 50", p.Count())
	}
}

func TestRemoveReapsIncludedTransactions(t *testing.T) {
	p := New()
	p.Submit(testTx("h1", 0))
	p.Submit(testTx("h2", 0))
	p.Submit(testTx("h3", 0))

	p.Remove([]string{"h1", "h3"})

	if p.Count() != 1 {
		t.Fatalf("Count after remove = %d, want 1", p.Count())
	}
	if drained := p.Drain(); len(drained) != 1 || drained[0].Hash != "h2" {
		t.Errorf("remaining transaction = %+v, want h2", drained)
	}
}

func TestCleanExpiredReapsOnlyOldTransactions(t *testing.T) {
	p := New()
	p.Submit(testTx("fresh", 0))
	p.Submit(testTx("stale", MaxTransactionAge.Milliseconds()+1000))

	removed := p.CleanExpired()
	if removed != 1 {
		t.Errorf("CleanExpired removed %d, want 1", removed)
	}
	if p.Count() != 1 {
		t.Errorf("Count after clean = %d, want 1", p.Count())
	}
	if drained := p.Drain(); len(drained) != 1 || drained[0].Hash != "fresh" {
		t.Errorf("surviving transaction = %+v, want the fresh one", drained)
	}
}

func TestRunCleanerStopsOnClose(t *testing.T) {
	p := New()
	p.Submit(testTx("stale", MaxTransactionAge.Milliseconds()+1000))

	stop := make(chan struct{})
	p.RunCleaner(5*time.Millisecond, stop)

	deadline := time.After(time.Second)
	for p.Count() > 0 {
		select {
		case <-deadline:
			t.Fatal("cleaner did not reap the stale transaction within a second")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(stop)
}
