package biometric

import (
	"strings"
	"testing"

	"github.com/empower1/proof-of-emotion/internal/poecrypto"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

func newTestValidator(t *testing.T, id string, stake uint64) *Validator {
	t.Helper()
	kp, err := poecrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return NewValidator(id, kp, stake)
}

func TestNewValidatorDefaults(t *testing.T) {
	v := newTestValidator(t, "v1", 10_000)
	if v.ID() != "v1" {
		t.Errorf("ID() = %q, want v1", v.ID())
	}
	if v.Stake() != 10_000 {
		t.Errorf("Stake() = %d, want 10000", v.Stake())
	}
	if v.Reputation() != 100 {
		t.Errorf("Reputation() = %d, want 100", v.Reputation())
	}
	if !v.IsActive() {
		t.Error("new validator should be active")
	}
	if v.EmotionalScore() != 0 {
		t.Errorf("EmotionalScore() before any assessment = %d, want 0", v.EmotionalScore())
	}
}

func TestUpdateEmotionalStateGoodReadings(t *testing.T) {
	v := newTestValidator(t, "v1", 10_000)
	readings := []Reading{
		{Type: HeartRate, Value: 70, Quality: 1.0, Timestamp: 1},
		{Type: StressLevel, Value: 10, Quality: 1.0, Timestamp: 2},
		{Type: FocusLevel, Value: 90, Quality: 1.0, Timestamp: 3},
	}
	profile, err := v.UpdateEmotionalState(readings)
	if err != nil {
		t.Fatalf("UpdateEmotionalState: %v", err)
	}
	if profile.EmotionalScore < 80 {
		t.Errorf("expected a high score for good readings, got %d", profile.EmotionalScore)
	}
	if v.EmotionalScore() != profile.EmotionalScore {
		t.Error("EmotionalScore() should reflect the stored profile")
	}
}

func TestUpdateEmotionalStateRejectsZeroQuality(t *testing.T) {
	v := newTestValidator(t, "v1", 10_000)
	_, err := v.UpdateEmotionalState([]Reading{{Type: HeartRate, Value: 70, Quality: 0}})
	if err == nil {
		t.Error("expected error when all readings have zero quality weight")
	}
}

func TestIsEligible(t *testing.T) {
	v := newTestValidator(t, "v1", 10_000)

	if v.IsEligible(75, 10_000) {
		t.Error("validator with no assessment yet should not be eligible")
	}

	v.UpdateEmotionalState([]Reading{
		{Type: HeartRate, Value: 70, Quality: 1.0, Timestamp: 1},
		{Type: FocusLevel, Value: 90, Quality: 1.0, Timestamp: 2},
	})

	if !v.IsEligible(50, 10_000) {
		t.Error("validator meeting both gates should be eligible")
	}
	if v.IsEligible(50, 20_000) {
		t.Error("validator below minimum stake should not be eligible")
	}

	v.SetActive(false)
	if v.IsEligible(50, 10_000) {
		t.Error("inactive validator should not be eligible")
	}
}

func TestAnalyzeTrend(t *testing.T) {
	improving := []scoreSample{{score: 50}, {score: 60}, {score: 70}, {score: 80}, {score: 90}}
	if got := analyzeTrend(improving); got != TrendImproving {
		t.Errorf("analyzeTrend(rising) = %v, want improving", got)
	}

	declining := []scoreSample{{score: 90}, {score: 80}, {score: 70}, {score: 60}, {score: 50}}
	if got := analyzeTrend(declining); got != TrendDeclining {
		t.Errorf("analyzeTrend(falling) = %v, want declining", got)
	}

	if got := analyzeTrend([]scoreSample{{score: 50}, {score: 50}}); got != TrendStable {
		t.Errorf("analyzeTrend(short history) = %v, want stable", got)
	}
}

func buildSignedBlock(t *testing.T, kp *poecrypto.KeyPair, height, epoch uint64, previousHash string) *poetypes.Block {
	t.Helper()
	header := poetypes.BlockHeader{
		Height:       height,
		Epoch:        epoch,
		PreviousHash: previousHash,
		MerkleRoot:   poetypes.CalculateMerkleRoot(nil),
		Timestamp:    poecrypto.NowMillis(),
		ValidatorID:  "proposer",
	}
	block := &poetypes.Block{Header: header}
	block.Hash = poetypes.CalculateBlockHash(block)
	if err := block.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return block
}

func TestValidateBlockAcceptsWellFormedBlock(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()
	block := buildSignedBlock(t, kp, 1, 1, "0000")

	if err := ValidateBlock(block, "0000", 1, 1); err != nil {
		t.Errorf("ValidateBlock rejected a well-formed block: %v", err)
	}
}

func TestValidateBlockRejectsHeightMismatch(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()
	block := buildSignedBlock(t, kp, 1, 1, "0000")

	if err := ValidateBlock(block, "0000", 2, 1); err == nil {
		t.Error("expected height mismatch error")
	}
}

func TestValidateBlockRejectsPreviousHashMismatch(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()
	block := buildSignedBlock(t, kp, 1, 1, "0000")

	if err := ValidateBlock(block, "ffff", 1, 1); err == nil {
		t.Error("expected previous hash mismatch error")
	}
}

func TestValidateBlockRejectsEpochMismatch(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()
	block := buildSignedBlock(t, kp, 1, 1, "0000")

	err := ValidateBlock(block, "0000", 1, 2)
	if err == nil {
		t.Fatal("expected epoch mismatch error for a block signed in a prior epoch")
	}
	if !strings.Contains(err.Error(), "epoch") {
		t.Errorf("error %q should name the epoch mismatch", err)
	}
}

func TestValidateBlockRejectsUnsignedTransaction(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()

	tx := poetypes.Transaction{From: "alice", To: "bob", Amount: 10, Fee: 1, Timestamp: poecrypto.NowMillis()}
	tx.Hash = tx.CalculateHash()

	header := poetypes.BlockHeader{
		Height:       1,
		Epoch:        1,
		PreviousHash: "0000",
		MerkleRoot:   poetypes.CalculateMerkleRoot([]poetypes.Transaction{tx}),
		Timestamp:    poecrypto.NowMillis(),
		ValidatorID:  "proposer",
	}
	block := &poetypes.Block{Header: header, Transactions: []poetypes.Transaction{tx}}
	block.Hash = poetypes.CalculateBlockHash(block)
	if err := block.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := ValidateBlock(block, "0000", 1, 1); err == nil {
		t.Error("a block carrying an unsigned transaction should be rejected")
	}
}

func TestValidateBlockRejectsBadSignature(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()
	block := buildSignedBlock(t, kp, 1, 1, "0000")
	other, _ := poecrypto.GenerateKeyPair()
	block.ProposerPublicKey = other.PublicKeyHex()

	if err := ValidateBlock(block, "0000", 1, 1); err == nil {
		t.Error("expected signature verification failure")
	}
}

func TestValidateBlockRejectsTamperedHash(t *testing.T) {
	kp, _ := poecrypto.GenerateKeyPair()
	block := buildSignedBlock(t, kp, 1, 1, "0000")
	block.Hash = "tampered"

	if err := ValidateBlock(block, "0000", 1, 1); err == nil {
		t.Error("expected block hash mismatch error")
	}
}

func TestValidateBlockRejectsNil(t *testing.T) {
	if err := ValidateBlock(nil, "0000", 1, 1); err == nil {
		t.Error("expected error validating a nil block")
	}
}

func TestSimulatorProducesThreeReadingTypes(t *testing.T) {
	sim := NewSimulator("device-1", "validator-1")
	readings, err := sim.CollectReadings()
	if err != nil {
		t.Fatalf("CollectReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("CollectReadings returned %d readings, want 3", len(readings))
	}
	seen := map[Type]bool{}
	for _, r := range readings {
		seen[r.Type] = true
		if r.Quality <= 0 || r.Quality > 1 {
			t.Errorf("reading quality %v out of (0,1] range", r.Quality)
		}
	}
	for _, want := range []Type{HeartRate, StressLevel, FocusLevel} {
		if !seen[want] {
			t.Errorf("missing reading type %v", want)
		}
	}
}

func TestSimulatorDeterministicPerValidator(t *testing.T) {
	a := NewSimulator("d1", "validator-1")
	b := NewSimulator("d2", "validator-1")
	if a.validatorSeed != b.validatorSeed {
		t.Error("simulators built from the same validator id should derive the same seed")
	}
}
