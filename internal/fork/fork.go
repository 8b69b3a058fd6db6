// Package fork implements fork detection and the deterministic
// Proof-of-Emotion fork-choice rule: highest emotional score, then
// highest consensus strength, then earliest timestamp.
package fork

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/empower1/proof-of-emotion/internal/consensuserrors"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
)

// Info describes a detected fork: the height it occurred at, the
// competing block hashes observed there, and — once resolve_fork has
// run — the chosen winner and the method used.
type Info struct {
	Height           uint64
	CompetingHashes  []string
	DetectedAt       int64
	ResolutionMethod string
	WinningHash      string
}

type blockMetadata struct {
	height            uint64
	emotionalScore    uint8
	consensusStrength uint8
	timestamp         int64
}

// Detector tracks which block hashes have been seen at each height and
// resolves competing chains deterministically.
type Detector struct {
	mu             sync.Mutex
	blocksAtHeight map[uint64]map[string]struct{}
	blockMetadata  map[string]blockMetadata
	canonicalChain []string
	forks          []Info
}

// NewDetector constructs an empty fork detector.
func NewDetector() *Detector {
	return &Detector{
		blocksAtHeight: make(map[uint64]map[string]struct{}),
		blockMetadata:  make(map[string]blockMetadata),
	}
}

// RecordBlock indexes block by height and hash. If a different hash is
// already recorded at the same height, this raises ForkDetected and
// appends a ForkInfo; the new block's hash is still indexed so
// ResolveFork and HasFork see every competitor.
func (d *Detector) RecordBlock(block *poetypes.Block) error {
	height := block.Header.Height
	hash := block.Hash

	d.mu.Lock()
	defer d.mu.Unlock()

	d.blockMetadata[hash] = blockMetadata{
		height:            height,
		emotionalScore:    block.Header.EmotionalScore,
		consensusStrength: block.Header.ConsensusStrength,
		timestamp:         block.Header.Timestamp,
	}

	set, ok := d.blocksAtHeight[height]
	if !ok {
		set = make(map[string]struct{})
		d.blocksAtHeight[height] = set
	}

	if len(set) > 0 {
		if _, already := set[hash]; !already {
			competing := make([]string, 0, len(set)+1)
			for h := range set {
				competing = append(competing, h)
			}
			competing = append(competing, hash)
			sort.Strings(competing)

			set[hash] = struct{}{}
			d.forks = append(d.forks, Info{
				Height:          height,
				CompetingHashes: competing,
				DetectedAt:      time.Now().UnixMilli(),
			})
			return consensuserrors.ForkDetected(height)
		}
		return nil
	}

	set[hash] = struct{}{}
	if n := len(d.canonicalChain); n == 0 || height == d.blockMetadata[d.canonicalChain[n-1]].height+1 {
		d.canonicalChain = append(d.canonicalChain, hash)
	}
	return nil
}

// ResolveFork picks the winning hash among the competing blocks at
// height by (1) highest emotional score, (2) highest consensus
// strength, (3) earliest timestamp. The result is independent of
// insertion order and idempotent across repeated calls.
func (d *Detector) ResolveFork(height uint64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.blocksAtHeight[height]
	if !ok || len(set) == 0 {
		return "", fmt.Errorf("no blocks to resolve at height %d", height)
	}

	type candidate struct {
		hash string
		meta blockMetadata
	}
	candidates := make([]candidate, 0, len(set))
	for hash := range set {
		if meta, ok := d.blockMetadata[hash]; ok {
			candidates = append(candidates, candidate{hash: hash, meta: meta})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i].meta, candidates[j].meta
		if a.emotionalScore != b.emotionalScore {
			return a.emotionalScore > b.emotionalScore
		}
		if a.consensusStrength != b.consensusStrength {
			return a.consensusStrength > b.consensusStrength
		}
		if a.timestamp != b.timestamp {
			return a.timestamp < b.timestamp
		}
		return candidates[i].hash < candidates[j].hash
	})

	winner := candidates[0].hash

	for i := range d.forks {
		if d.forks[i].Height == height && d.forks[i].WinningHash == "" {
			d.forks[i].ResolutionMethod = "emotional_score_priority"
			d.forks[i].WinningHash = winner
		}
	}

	return winner, nil
}

// HasFork reports whether more than one distinct block hash has been
// recorded at height.
func (d *Detector) HasFork(height uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.blocksAtHeight[height]) > 1
}

// GetCanonicalChain returns the sequence of block hashes that extended
// the chain without contention.
func (d *Detector) GetCanonicalChain() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.canonicalChain))
	copy(out, d.canonicalChain)
	return out
}

// GetForks returns every fork recorded so far, resolved or not.
func (d *Detector) GetForks() []Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Info, len(d.forks))
	copy(out, d.forks)
	return out
}

// CleanupOldForks prunes indexed heights, block metadata, and fork
// records at every height up to and including currentHeight-keepHeight.
func (d *Detector) CleanupOldForks(currentHeight, keepHeight uint64) {
	if currentHeight <= keepHeight {
		return
	}
	cutoff := currentHeight - keepHeight

	d.mu.Lock()
	defer d.mu.Unlock()
	for height := range d.blocksAtHeight {
		if height <= cutoff {
			delete(d.blocksAtHeight, height)
		}
	}
	for hash, meta := range d.blockMetadata {
		if meta.height <= cutoff {
			delete(d.blockMetadata, hash)
		}
	}
	kept := d.forks[:0]
	for _, f := range d.forks {
		if f.Height > cutoff {
			kept = append(kept, f)
		}
	}
	d.forks = kept
}
