// Package poetypes defines the wire-level data model shared across the
// Proof of Emotion consensus engine: block headers, transactions, votes,
// and the metadata finalized blocks carry once consensus completes.
package poetypes

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/empower1/proof-of-emotion/internal/poecrypto"
)

// BlockHeader carries the fields a proposer commits to before a block is
// voted on. EmotionalScore reflects the proposer's score at proposal time
// and is part of the signed block hash; ConsensusStrength is filled in by
// the engine after voting completes and is not part of the hash, since the
// proposer signs the block before the committee votes on it.
type BlockHeader struct {
	Height            uint64 `json:"height"`
	Epoch             uint64 `json:"epoch"`
	PreviousHash      string `json:"previousHash"`
	MerkleRoot        string `json:"merkleRoot"`
	Timestamp         int64  `json:"timestamp"` // unix millis
	ValidatorID       string `json:"validatorId"`
	EmotionalScore    uint8  `json:"emotionalScore"`
	ConsensusStrength uint8  `json:"consensusStrength"`
}

// Transaction is the fundamental unit of pending work the engine batches
// into proposals.
type Transaction struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Fee       uint64 `json:"fee"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
	Data      []byte `json:"data,omitempty"`
}

// CalculateHash derives the transaction hash: SHA-256 over from, to,
// amount, fee, and timestamp (all integers little-endian).
func (t *Transaction) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(t.From))
	h.Write([]byte(t.To))
	writeUint64LE(h, t.Amount)
	writeUint64LE(h, t.Fee)
	writeUint64LE(h, uint64(t.Timestamp))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// VerifyHash reports whether t.Hash matches the recomputed content hash.
func (t *Transaction) VerifyHash() bool {
	return t.Hash == t.CalculateHash()
}

func writeUint64LE(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// IsExpired reports whether the transaction is older than maxAgeMs
// relative to nowMs.
func (t *Transaction) IsExpired(nowMs, maxAgeMs int64) bool {
	return nowMs-t.Timestamp > maxAgeMs
}

// signingPayload is the byte sequence a transaction signature covers:
// hash, parties, amount, fee, timestamp, and the opaque data bytes.
func (t *Transaction) signingPayload() []byte {
	var buf [8]byte
	payload := make([]byte, 0, len(t.Hash)+len(t.From)+len(t.To)+24+len(t.Data))
	payload = append(payload, t.Hash...)
	payload = append(payload, t.From...)
	payload = append(payload, t.To...)
	binary.LittleEndian.PutUint64(buf[:], t.Amount)
	payload = append(payload, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], t.Fee)
	payload = append(payload, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], uint64(t.Timestamp))
	payload = append(payload, buf[:]...)
	payload = append(payload, t.Data...)
	return payload
}

// Sign signs the transaction's payload with keyPair, storing the
// signature and the signer's public key on the transaction.
func (t *Transaction) Sign(keyPair *poecrypto.KeyPair) error {
	sig, err := keyPair.Sign(t.signingPayload())
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	t.Signature = sig
	t.PublicKey = keyPair.PublicKeyHex()
	return nil
}

// VerifySignature recovers the signer from the stored signature and
// confirms it matches the stored public key.
func (t *Transaction) VerifySignature() (bool, error) {
	if t.Signature == "" {
		return false, fmt.Errorf("transaction has no signature")
	}
	if t.PublicKey == "" {
		return false, fmt.Errorf("transaction has no public key")
	}
	return poecrypto.Verify(t.signingPayload(), t.Signature, t.PublicKey)
}

// Block is a single proposed or finalized unit of the chain.
type Block struct {
	Header            BlockHeader        `json:"header"`
	Hash              string             `json:"hash"`
	Transactions      []Transaction      `json:"transactions"`
	Signature         string             `json:"signature"`
	ProposerPublicKey string             `json:"proposerPublicKey"`
	ConsensusMetadata *ConsensusMetadata `json:"consensusMetadata,omitempty"`
}

// ConsensusMetadata is attached to a block once finalization completes.
type ConsensusMetadata struct {
	ParticipantCount  int      `json:"participantCount"`
	ConsensusStrength uint8    `json:"consensusStrength"`
	EmotionalFitness  uint8    `json:"emotionalFitness"`
	ByzantineFailures int      `json:"byzantineFailures"`
	FinalizedAt       int64    `json:"finalizedAt"`
	Participants      []string `json:"participants"`
}

// CalculateMerkleRoot builds the duplicate-last-on-odd binary Merkle tree
// over transaction hashes. An empty transaction set hashes the literal
// string "empty".
func CalculateMerkleRoot(txs []Transaction) string {
	if len(txs) == 0 {
		sum := sha256.Sum256([]byte("empty"))
		return fmt.Sprintf("%x", sum)
	}
	level := make([]string, len(txs))
	for i, tx := range txs {
		level[i] = tx.Hash
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write([]byte(level[i]))
			h.Write([]byte(level[i+1]))
			next = append(next, fmt.Sprintf("%x", h.Sum(nil)))
		}
		level = next
	}
	return level[0]
}

// CalculateBlockHash hashes the header fields plus the merkle root and
// every transaction hash in order.
func CalculateBlockHash(b *Block) string {
	h := sha256.New()
	writeUint64LE(h, b.Header.Height)
	writeUint64LE(h, b.Header.Epoch)
	h.Write([]byte(b.Header.PreviousHash))
	h.Write([]byte(b.Header.MerkleRoot))
	writeUint64LE(h, uint64(b.Header.Timestamp))
	h.Write([]byte(b.Header.ValidatorID))
	h.Write([]byte{b.Header.EmotionalScore})
	for _, tx := range b.Transactions {
		h.Write([]byte(tx.Hash))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// blockSigningPayload is the byte sequence a block signature covers: the
// header fields the proposer commits to, the block hash, and every
// transaction hash.
func blockSigningPayload(b *Block) []byte {
	var buf [8]byte
	payload := make([]byte, 0, 256+len(b.Transactions)*64)
	binary.LittleEndian.PutUint64(buf[:], b.Header.Height)
	payload = append(payload, buf[:]...)
	payload = append(payload, b.Header.PreviousHash...)
	payload = append(payload, b.Header.MerkleRoot...)
	binary.LittleEndian.PutUint64(buf[:], uint64(b.Header.Timestamp))
	payload = append(payload, buf[:]...)
	payload = append(payload, b.Header.ValidatorID...)
	payload = append(payload, b.Header.EmotionalScore)
	payload = append(payload, b.Hash...)
	for _, tx := range b.Transactions {
		payload = append(payload, tx.Hash...)
	}
	return payload
}

// Sign signs the block's payload with keyPair, storing the signature
// and the proposer's public key on the block. The block hash must be
// computed before signing.
func (b *Block) Sign(keyPair *poecrypto.KeyPair) error {
	if b.Hash == "" {
		return fmt.Errorf("cannot sign a block with no hash")
	}
	sig, err := keyPair.Sign(blockSigningPayload(b))
	if err != nil {
		return fmt.Errorf("failed to sign block: %w", err)
	}
	b.Signature = sig
	b.ProposerPublicKey = keyPair.PublicKeyHex()
	return nil
}

// VerifySignature recovers the signer from the stored block signature
// and confirms it matches the stored proposer public key.
func (b *Block) VerifySignature() (bool, error) {
	if b.Signature == "" {
		return false, fmt.Errorf("block has no signature")
	}
	if b.ProposerPublicKey == "" {
		return false, fmt.Errorf("block has no proposer public key")
	}
	return poecrypto.Verify(blockSigningPayload(b), b.Signature, b.ProposerPublicKey)
}

// Vote is a single committee member's verdict on a proposed block.
type Vote struct {
	ValidatorID    string `json:"validatorId"`
	BlockHash      string `json:"blockHash"`
	Epoch          uint64 `json:"epoch"`
	Round          uint32 `json:"round"`
	EmotionalScore uint8  `json:"emotionalScore"`
	Signature      string `json:"signature"`
	Timestamp      int64  `json:"timestamp"`
	Approved       bool   `json:"approved"`
	Reason         string `json:"reason,omitempty"`
}

// VotingResult summarizes a completed voting phase for one proposed block.
type VotingResult struct {
	Success               bool     `json:"success"`
	ConsensusStrength     uint8    `json:"consensusStrength"`
	ParticipantCount      int      `json:"participantCount"`
	ByzantineCount        int      `json:"byzantineCount"`
	AverageEmotionalScore uint8    `json:"averageEmotionalScore"`
	Participants          []string `json:"participants"`
	Votes                 []Vote   `json:"votes"`
	Reason                string   `json:"reason,omitempty"`
}
