package checkpoint

import (
	"testing"

	"github.com/empower1/proof-of-emotion/internal/poecrypto"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

func signedCheckpointSignature(t *testing.T, kp *poecrypto.KeyPair, height uint64, blockHash string, epoch uint64, stateRoot string) ValidatorSignature {
	t.Helper()
	sig, err := SignCheckpoint(height, blockHash, epoch, stateRoot, kp)
	if err != nil {
		t.Fatalf("SignCheckpoint: %v", err)
	}
	return ValidatorSignature{ValidatorID: "v1", Stake: 1000, Signature: sig, PublicKey: kp.PublicKeyHex()}
}

func TestShouldCreateCheckpoint(t *testing.T) {
	m := NewManager(100, 67)
	if !m.ShouldCreateCheckpoint(100) {
		t.Error("height on the interval boundary should trigger a checkpoint")
	}
	if m.ShouldCreateCheckpoint(150) {
		t.Error("height off the interval boundary should not trigger a checkpoint")
	}
	zero := NewManager(0, 67)
	if zero.ShouldCreateCheckpoint(100) {
		t.Error("a zero interval should never trigger a checkpoint")
	}
}

func TestCreateAndVerifyCheckpoint(t *testing.T) {
	m := NewManager(100, 67)
	kp, _ := poecrypto.GenerateKeyPair()

	block := &poetypes.Block{Header: poetypes.BlockHeader{Height: 100, Epoch: 1, MerkleRoot: "root1"}, Hash: "blockhash1"}
	sig := signedCheckpointSignature(t, kp, block.Header.Height, block.Hash, block.Header.Epoch, block.Header.MerkleRoot)

	cp, err := m.CreateCheckpoint(block, []ValidatorSignature{sig})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	if cp.Height != 100 || cp.TotalStakeSigned != 1000 {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}

	ok, err := m.VerifyCheckpoint(cp)
	if err != nil {
		t.Fatalf("VerifyCheckpoint: %v", err)
	}
	if !ok {
		t.Error("freshly created checkpoint should verify")
	}
}

func TestCreateCheckpointRejectsInsufficientStake(t *testing.T) {
	m := NewManager(100, 67)
	m.UpdateTotalStake(10_000)
	kp, _ := poecrypto.GenerateKeyPair()

	block := &poetypes.Block{Header: poetypes.BlockHeader{Height: 100, Epoch: 1, MerkleRoot: "root1"}, Hash: "blockhash1"}
	sig := signedCheckpointSignature(t, kp, block.Header.Height, block.Hash, block.Header.Epoch, block.Header.MerkleRoot)
	sig.Stake = 1000 // 10% of total network stake, below the 67% gate

	if _, err := m.CreateCheckpoint(block, []ValidatorSignature{sig}); err == nil {
		t.Error("expected error when signed stake is below the minimum percentage")
	}
}

func TestVerifyCheckpointRejectsTamperedPayload(t *testing.T) {
	m := NewManager(100, 67)
	kp, _ := poecrypto.GenerateKeyPair()

	block := &poetypes.Block{Header: poetypes.BlockHeader{Height: 100, Epoch: 1, MerkleRoot: "root1"}, Hash: "blockhash1"}
	sig := signedCheckpointSignature(t, kp, block.Header.Height, block.Hash, block.Header.Epoch, block.Header.MerkleRoot)

	cp, err := m.CreateCheckpoint(block, []ValidatorSignature{sig})
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	cp.StateRoot = "tampered-root"

	ok, err := m.VerifyCheckpoint(cp)
	if err != nil {
		t.Fatalf("VerifyCheckpoint: %v", err)
	}
	if ok {
		t.Error("checkpoint with a tampered field should fail signature verification")
	}
}

func TestVerifyCheckpointRejectsEmptySignatures(t *testing.T) {
	m := NewManager(100, 67)
	_, err := m.VerifyCheckpoint(&Checkpoint{Height: 1})
	if err == nil {
		t.Error("expected error verifying a checkpoint with no validator signatures")
	}
}

func TestGetLatestAndAtHeight(t *testing.T) {
	m := NewManager(100, 67)
	kp, _ := poecrypto.GenerateKeyPair()

	for _, h := range []uint64{100, 200} {
		block := &poetypes.Block{Header: poetypes.BlockHeader{Height: h, Epoch: 1, MerkleRoot: "root"}, Hash: "hash"}
		sig := signedCheckpointSignature(t, kp, h, block.Hash, 1, "root")
		if _, err := m.CreateCheckpoint(block, []ValidatorSignature{sig}); err != nil {
			t.Fatalf("CreateCheckpoint at height %d: %v", h, err)
		}
	}

	latest, ok := m.GetLatestCheckpoint()
	if !ok || latest.Height != 200 {
		t.Errorf("GetLatestCheckpoint = %+v, ok=%v, want height 200", latest, ok)
	}

	at100, ok := m.GetCheckpointAtHeight(100)
	if !ok || at100.Height != 100 {
		t.Errorf("GetCheckpointAtHeight(100) = %+v, ok=%v", at100, ok)
	}

	if _, ok := m.GetCheckpointAtHeight(300); ok {
		t.Error("expected no checkpoint at height 300")
	}
}

func TestPruneOldCheckpoints(t *testing.T) {
	m := NewManager(100, 67)
	kp, _ := poecrypto.GenerateKeyPair()
	for _, h := range []uint64{100, 200, 300} {
		block := &poetypes.Block{Header: poetypes.BlockHeader{Height: h, Epoch: 1, MerkleRoot: "root"}, Hash: "hash"}
		sig := signedCheckpointSignature(t, kp, h, block.Hash, 1, "root")
		m.CreateCheckpoint(block, []ValidatorSignature{sig})
	}

	m.PruneOldCheckpoints(1)
	all := m.GetAllCheckpoints()
	if len(all) != 1 || all[0].Height != 300 {
		t.Errorf("PruneOldCheckpoints kept %+v, want only height 300", all)
	}
}

func TestGetStatistics(t *testing.T) {
	m := NewManager(100, 67)
	kp, _ := poecrypto.GenerateKeyPair()
	block := &poetypes.Block{Header: poetypes.BlockHeader{Height: 100, Epoch: 1, MerkleRoot: "root"}, Hash: "hash"}
	sig := signedCheckpointSignature(t, kp, 100, block.Hash, 1, "root")
	m.CreateCheckpoint(block, []ValidatorSignature{sig})

	stats := m.GetStatistics()
	if stats.TotalCheckpoints != 1 || stats.LatestCheckpointHeight != 100 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGetBlocksSinceCheckpoint(t *testing.T) {
	cp := &Checkpoint{Height: 100}
	heights := GetBlocksSinceCheckpoint(cp, 103)
	want := []uint64{101, 102, 103}
	if len(heights) != len(want) {
		t.Fatalf("GetBlocksSinceCheckpoint = %v, want %v", heights, want)
	}
	for i := range want {
		if heights[i] != want[i] {
			t.Errorf("heights[%d] = %d, want %d", i, heights[i], want[i])
		}
	}

	if got := GetBlocksSinceCheckpoint(cp, 100); got != nil {
		t.Errorf("GetBlocksSinceCheckpoint at the checkpoint height = %v, want nil", got)
	}
}
