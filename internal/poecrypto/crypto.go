// Package poecrypto implements the signing and emotional-proof primitives
// used by the consensus engine: recoverable ECDSA/secp256k1 signatures and
// the aggregate EmotionalProof committee members attach to a proposal.
package poecrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// FreshnessWindow is the maximum age, in milliseconds, an EmotionalProof
// may have before it is considered stale.
const FreshnessWindow = 5 * 60 * 1000

// KeyPair wraps a secp256k1 key pair used for block, vote, and checkpoint
// signing.
type KeyPair struct {
	secret *secp256k1.PrivateKey
	public *secp256k1.PublicKey
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	secret, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("poecrypto: generate key: %w", err)
	}
	return &KeyPair{secret: secret, public: secret.PubKey()}, nil
}

// KeyPairFromSecretHex reconstructs a key pair from a hex-encoded 32-byte
// secret scalar.
func KeyPairFromSecretHex(secretHex string) (*KeyPair, error) {
	b, err := hex.DecodeString(secretHex)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("poecrypto: invalid secret key hex")
	}
	secret := secp256k1.PrivKeyFromBytes(b)
	return &KeyPair{secret: secret, public: secret.PubKey()}, nil
}

// PublicKeyHex returns the compressed public key, hex-encoded.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.public.SerializeCompressed())
}

// SecretKeyHex returns the raw secret scalar, hex-encoded. Callers should
// treat this as sensitive material.
func (k *KeyPair) SecretKeyHex() string {
	return hex.EncodeToString(k.secret.Serialize())
}

// SignatureAlgorithm tags every signature this package produces.
const SignatureAlgorithm = "ECDSA-secp256k1"

// compactSignatureLen is the length of a recoverable compact signature:
// one recovery byte followed by the 64-byte (r, s) pair.
const compactSignatureLen = 65

// Signature is the transport decomposition of a recoverable compact
// signature: the 64-byte (r, s) pair hex-encoded, the recovery byte,
// and the algorithm tag.
type Signature struct {
	SignatureHex string `json:"signature"`
	RecoveryByte byte   `json:"recoveryByte"`
	Algorithm    string `json:"algorithm"`
}

// DecodeSignature splits a compact signature hex string into its
// transport parts, rejecting malformed input.
func DecodeSignature(compactHex string) (Signature, error) {
	b, err := hex.DecodeString(compactHex)
	if err != nil {
		return Signature{}, fmt.Errorf("poecrypto: invalid signature hex: %w", err)
	}
	if len(b) != compactSignatureLen {
		return Signature{}, fmt.Errorf("poecrypto: compact signature must be %d bytes, got %d", compactSignatureLen, len(b))
	}
	return Signature{
		SignatureHex: hex.EncodeToString(b[1:]),
		RecoveryByte: b[0],
		Algorithm:    SignatureAlgorithm,
	}, nil
}

// CompactHex reassembles the signature into the compact hex form Sign
// produces and Verify consumes.
func (s Signature) CompactHex() (string, error) {
	sigBytes, err := hex.DecodeString(s.SignatureHex)
	if err != nil {
		return "", fmt.Errorf("poecrypto: invalid signature hex: %w", err)
	}
	if len(sigBytes) != compactSignatureLen-1 {
		return "", fmt.Errorf("poecrypto: signature body must be %d bytes, got %d", compactSignatureLen-1, len(sigBytes))
	}
	return hex.EncodeToString(append([]byte{s.RecoveryByte}, sigBytes...)), nil
}

// Sign hashes message with SHA-256 and produces a recoverable compact
// signature over the digest.
func (k *KeyPair) Sign(message []byte) (string, error) {
	digest := sha256.Sum256(message)
	sig := ecdsa.SignCompact(k.secret, digest[:], true)
	return hex.EncodeToString(sig), nil
}

// Verify recovers the signer's public key from signatureHex and confirms
// it matches publicKeyHex — recovery-based verification, not a bare
// signature check against a known key.
func Verify(message []byte, signatureHex string, publicKeyHex string) (bool, error) {
	sig, err := DecodeSignature(signatureHex)
	if err != nil {
		return false, err
	}
	compact, err := sig.CompactHex()
	if err != nil {
		return false, err
	}
	sigBytes, _ := hex.DecodeString(compact)
	digest := sha256.Sum256(message)
	recoveredPub, _, err := ecdsa.RecoverCompact(sigBytes, digest[:])
	if err != nil {
		return false, fmt.Errorf("poecrypto: signature recovery failed: %w", err)
	}
	return hex.EncodeToString(recoveredPub.SerializeCompressed()) == publicKeyHex, nil
}

// HashBiometricData returns the hex-encoded SHA-256 digest of raw
// biometric payload bytes, used so biometric values themselves never
// leave the validator's process.
func HashBiometricData(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// EmotionalProof aggregates committee members' emotional scores for a
// single assessment window into a single signed, Merkle-rooted claim.
type EmotionalProof struct {
	Validators        []string          `json:"validators"`
	EmotionalScores   map[string]uint8  `json:"emotionalScores"`
	BiometricHashes   map[string]string `json:"biometricHashes"`
	TemporalWindowMs  uint64            `json:"temporalWindowMs"`
	Timestamp         int64             `json:"timestamp"`
	ConsensusStrength uint8             `json:"consensusStrength"`
	MerkleRoot        string            `json:"merkleRoot"`
	Signature         string            `json:"signature"`
}

// NewEmotionalProof builds and signs an EmotionalProof for the given
// per-validator scores and biometric hashes.
func NewEmotionalProof(
	validators []string,
	scores map[string]uint8,
	biometricHashes map[string]string,
	temporalWindowMs uint64,
	timestampMs int64,
	signer *KeyPair,
) (*EmotionalProof, error) {
	strength := calculateConsensusStrength(scores)
	merkleRoot := calculateProofMerkleRoot(validators, scores, biometricHashes, temporalWindowMs, timestampMs)

	proof := &EmotionalProof{
		Validators:        validators,
		EmotionalScores:   scores,
		BiometricHashes:   biometricHashes,
		TemporalWindowMs:  temporalWindowMs,
		Timestamp:         timestampMs,
		ConsensusStrength: strength,
		MerkleRoot:        merkleRoot,
	}

	sig, err := signer.Sign([]byte(proofSigningPayload(proof)))
	if err != nil {
		return nil, err
	}
	proof.Signature = sig
	return proof, nil
}

// Verify checks signature validity, merkle-root consistency, freshness
// (5 minute window), and that the stored consensus strength is within 1
// point of a recomputed value.
func (p *EmotionalProof) Verify(signerPublicKeyHex string, nowMs int64) (bool, error) {
	ok, err := Verify([]byte(proofSigningPayload(p)), p.Signature, signerPublicKeyHex)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if calculateProofMerkleRoot(p.Validators, p.EmotionalScores, p.BiometricHashes, p.TemporalWindowMs, p.Timestamp) != p.MerkleRoot {
		return false, nil
	}
	if nowMs-p.Timestamp > FreshnessWindow {
		return false, nil
	}
	expected := calculateConsensusStrength(p.EmotionalScores)
	diff := int(expected) - int(p.ConsensusStrength)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1, nil
}

func proofSigningPayload(p *EmotionalProof) string {
	scoresJSON, _ := json.Marshal(p.EmotionalScores)
	hashesJSON, _ := json.Marshal(p.BiometricHashes)
	return fmt.Sprintf("%s:%s:%s:%d:%d",
		strings.Join(p.Validators, ","), scoresJSON, hashesJSON, p.TemporalWindowMs, p.Timestamp)
}

func calculateProofMerkleRoot(validators []string, scores map[string]uint8, hashes map[string]string, window uint64, ts int64) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(validators, ",")))
	scoresJSON, _ := json.Marshal(scores)
	h.Write(scoresJSON)
	hashesJSON, _ := json.Marshal(hashes)
	h.Write(hashesJSON)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(window >> (8 * i))
	}
	h.Write(buf[:])
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(ts) >> (8 * i))
	}
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// calculateConsensusStrength is the mean emotional score penalized by
// variance: mean - min(sqrt(variance)/5, 20), clamped to [0, 100].
func calculateConsensusStrength(scores map[string]uint8) uint8 {
	if len(scores) == 0 {
		return 0
	}
	values := make([]float64, 0, len(scores))
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sum float64
	for _, k := range keys {
		v := float64(scores[k])
		values = append(values, v)
		sum += v
	}
	mean := sum / float64(len(values))
	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	variance := sqDiff / float64(len(values))
	penalty := math.Min(math.Sqrt(variance)/5.0, 20.0)
	result := mean - penalty
	if result < 0 {
		result = 0
	}
	if result > 100 {
		result = 100
	}
	return uint8(result)
}

// NowMillis returns the current time as unix milliseconds; extracted so
// callers can stamp timestamps consistently.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
