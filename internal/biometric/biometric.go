// Package biometric implements the emotional-fitness eligibility gate:
// biometric reading ingestion, emotional scoring, trend analysis, and the
// deterministic simulator used when no real biometric device is attached.
package biometric

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/empower1/proof-of-emotion/internal/consensuserrors"
	"github.com/empower1/proof-of-emotion/internal/poecrypto"
	"github.com/empower1/proof-of-emotion/internal/poetypes"
	"github.com/empower1/proof-of-emotion/internal/utils"
)

// Type enumerates the kinds of biometric signal the assessment phase
// consumes.
type Type string

const (
	HeartRate       Type = "heart_rate"
	StressLevel     Type = "stress_level"
	FocusLevel      Type = "focus_level"
	SkinConductance Type = "skin_conductance"
	SkinTemperature Type = "skin_temperature"
)

// Reading is a single biometric sample from a device.
type Reading struct {
	DeviceID  string
	Type      Type
	Value     float64
	Quality   float64 // 0..1
	Timestamp int64   // unix millis
}

// Trend classifies the short-term direction of a validator's emotional
// score.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Profile is the most recently computed emotional assessment for a
// validator.
type Profile struct {
	EmotionalScore uint8
	Trend          Trend
	Confidence     uint8
	LastUpdated    int64
}

// Device is the narrow capability interface an emotional validator uses
// to pull fresh biometric readings; BiometricSimulator and any real
// hardware-backed collector both satisfy it.
type Device interface {
	CollectReadings() ([]Reading, error)
	DeviceID() string
	IsHealthy() bool
}

// Validator wraps a consensus validator's emotional-assessment state:
// stake, reputation, score history, and the most recent profile. All
// mutable fields are guarded by a single RWMutex.
type Validator struct {
	mu sync.RWMutex

	id         string
	keyPair    *poecrypto.KeyPair
	stake      uint64
	active     bool
	reputation uint8
	profile    *Profile
	history    []scoreSample // capped ring of recent (score, timestamp)
}

type scoreSample struct {
	score     uint8
	timestamp int64
}

const historyCap = 100

// NewValidator constructs a validator entry with the given starting stake
// and full (100) reputation.
func NewValidator(id string, keyPair *poecrypto.KeyPair, stake uint64) *Validator {
	return &Validator{
		id:         id,
		keyPair:    keyPair,
		stake:      stake,
		active:     true,
		reputation: 100,
	}
}

func (v *Validator) ID() string { return v.id }

func (v *Validator) KeyPair() *poecrypto.KeyPair { return v.keyPair }

func (v *Validator) Stake() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stake
}

func (v *Validator) SetStake(stake uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stake = stake
}

func (v *Validator) Reputation() uint8 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reputation
}

func (v *Validator) SetReputation(r uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reputation = r
}

func (v *Validator) IsActive() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active
}

func (v *Validator) SetActive(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = active
}

// EmotionalScore returns the most recently assessed score, or 0 if no
// assessment has run yet.
func (v *Validator) EmotionalScore() uint8 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.profile == nil {
		return 0
	}
	return v.profile.EmotionalScore
}

// UpdateEmotionalState scores a fresh batch of readings, computes trend
// and confidence, stores the resulting profile, and appends to the
// capped score history.
func (v *Validator) UpdateEmotionalState(readings []Reading) (*Profile, error) {
	score, err := calculateEmotionalScore(readings)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := poecrypto.NowMillis()
	v.history = append(v.history, scoreSample{score: score, timestamp: now})
	if len(v.history) > historyCap {
		v.history = v.history[len(v.history)-historyCap:]
	}

	trend := analyzeTrend(v.history)
	confidence := calculateConfidence(readings)

	profile := &Profile{
		EmotionalScore: score,
		Trend:          trend,
		Confidence:     confidence,
		LastUpdated:    now,
	}
	v.profile = profile
	return profile, nil
}

// IsEligible reports whether the validator currently meets the emotional
// and stake gates for committee participation.
func (v *Validator) IsEligible(emotionalThreshold uint8, minimumStake uint64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.active || v.stake < minimumStake {
		return false
	}
	if v.profile == nil {
		return false
	}
	return v.profile.EmotionalScore >= emotionalThreshold
}

// ValidateBlock checks a proposed block against the validator's view of
// expected chain state: epoch match (rejecting replayed proposals),
// previous-hash match, height match, non-empty validator id,
// merkle-root and block-hash recomputation, per-transaction hash check,
// timestamp bounds, block signature verification, and per-transaction
// signature verification.
func ValidateBlock(block *poetypes.Block, expectedPreviousHash string, expectedHeight uint64, expectedEpoch uint64) error {
	if block == nil {
		return consensuserrors.InvalidBlock("cannot validate nil block")
	}
	if block.Header.Epoch != expectedEpoch {
		return consensuserrors.InvalidBlock(fmt.Sprintf("epoch mismatch: expected %d, got %d", expectedEpoch, block.Header.Epoch))
	}
	if block.Header.PreviousHash != expectedPreviousHash {
		return consensuserrors.InvalidBlock("previous hash mismatch")
	}
	if block.Header.Height != expectedHeight {
		return consensuserrors.InvalidBlock(fmt.Sprintf("height mismatch: expected %d, got %d", expectedHeight, block.Header.Height))
	}
	if block.Header.ValidatorID == "" {
		return consensuserrors.InvalidBlock("empty validator id")
	}
	if poetypes.CalculateMerkleRoot(block.Transactions) != block.Header.MerkleRoot {
		return consensuserrors.InvalidBlock("merkle root mismatch")
	}
	if poetypes.CalculateBlockHash(block) != block.Hash {
		return consensuserrors.InvalidBlock("block hash mismatch")
	}
	for _, tx := range block.Transactions {
		if !tx.VerifyHash() {
			return consensuserrors.InvalidBlock(fmt.Sprintf("transaction hash mismatch: %s", tx.Hash))
		}
	}
	now := time.Now().UnixMilli()
	if block.Header.Timestamp > now+5000 {
		return consensuserrors.InvalidBlock("timestamp too far in the future")
	}
	if now-block.Header.Timestamp > int64(time.Hour/time.Millisecond) {
		return consensuserrors.InvalidBlock("timestamp too old")
	}
	ok, err := block.VerifySignature()
	if err != nil {
		return consensuserrors.SignatureVerificationFailed(err.Error())
	}
	if !ok {
		return consensuserrors.SignatureVerificationFailed("block signature does not match proposer public key")
	}
	for _, tx := range block.Transactions {
		ok, err := tx.VerifySignature()
		if err != nil {
			return consensuserrors.SignatureVerificationFailed(fmt.Sprintf("transaction %s: %s", tx.Hash, err))
		}
		if !ok {
			return consensuserrors.SignatureVerificationFailed(fmt.Sprintf("transaction %s signature does not match its public key", tx.Hash))
		}
	}
	return nil
}

func calculateEmotionalScore(readings []Reading) (uint8, error) {
	readings = filterAnomalousReadings(readings)

	var weightedSum, totalWeight float64
	for _, r := range readings {
		var component float64
		switch r.Type {
		case HeartRate:
			switch {
			case r.Value >= 60 && r.Value <= 80:
				component = 100
			case r.Value >= 50 && r.Value <= 100:
				component = 80
			default:
				component = 50
			}
		case StressLevel:
			component = utils.ClampFloat(100-r.Value, 0, 100)
		case FocusLevel:
			component = utils.ClampFloat(r.Value, 0, 100)
		default:
			component = 75
		}
		weightedSum += component * r.Quality
		totalWeight += r.Quality
	}
	if totalWeight == 0 {
		return 0, consensuserrors.BiometricValidationFailed("no usable readings: total quality weight is zero")
	}
	score := utils.ClampFloat(weightedSum/totalWeight, 0, 100)
	return uint8(score), nil
}

// anomalyStdDevThreshold is how many standard deviations from the
// per-type mean a reading must sit at before it's dropped as a sensor
// spike. Groups with fewer than three samples of a type are never
// filtered — there isn't enough signal to call anything an outlier.
const anomalyStdDevThreshold = 2.5

// filterAnomalousReadings drops per-type outliers (sensor spikes) before
// scoring, so a single bad sample can't dominate the weighted average.
func filterAnomalousReadings(readings []Reading) []Reading {
	byType := make(map[Type][]int)
	for i, r := range readings {
		byType[r.Type] = append(byType[r.Type], i)
	}

	dropped := make(map[int]bool)
	for _, indices := range byType {
		if len(indices) < 3 {
			continue
		}
		values := make([]float64, len(indices))
		for j, idx := range indices {
			values[j] = readings[idx].Value
		}
		for _, anomalyIdx := range utils.DetectAnomalies(values, anomalyStdDevThreshold) {
			dropped[indices[anomalyIdx]] = true
		}
	}
	if len(dropped) == 0 {
		return readings
	}

	filtered := make([]Reading, 0, len(readings)-len(dropped))
	for i, r := range readings {
		if !dropped[i] {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func analyzeTrend(history []scoreSample) Trend {
	if len(history) < 3 {
		return TrendStable
	}
	window := history
	if len(window) > 5 {
		window = window[len(window)-5:]
	}

	scores := make([]float64, len(window))
	for i, s := range window {
		scores[i] = float64(s.score)
	}
	if smoothed := utils.SimpleMovingAverage(scores, 2); len(smoothed) >= 3 {
		scores = smoothed
	}

	n := len(scores)
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range scores {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return TrendStable
	}
	slope := (nf*sumXY - sumX*sumY) / denom
	switch {
	case slope > 2.0:
		return TrendImproving
	case slope < -2.0:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func calculateConfidence(readings []Reading) uint8 {
	if len(readings) == 0 {
		return 0
	}
	var qualitySum float64
	types := map[Type]bool{}
	var minTs, maxTs int64
	for i, r := range readings {
		qualitySum += r.Quality
		types[r.Type] = true
		if i == 0 {
			minTs, maxTs = r.Timestamp, r.Timestamp
			continue
		}
		if r.Timestamp < minTs {
			minTs = r.Timestamp
		}
		if r.Timestamp > maxTs {
			maxTs = r.Timestamp
		}
	}
	avgQuality := qualitySum / float64(len(readings)) * 100

	multimodalBonus := math.Min(float64(len(types))*5, 20)

	span := maxTs - minTs
	var temporalBonus float64
	switch {
	case span < 5000:
		temporalBonus = 10
	case span < 60000:
		temporalBonus = 5
	default:
		temporalBonus = 0
	}

	total := avgQuality + multimodalBonus + temporalBonus
	return uint8(utils.ClampFloat(total, 0, 100))
}

// Simulator is the deterministic, per-validator synthetic biometric
// device used when no real biometric hardware is wired in. It derives a
// stable per-validator seed from the validator id so repeated runs
// against the same validator produce comparable (not identical) values,
// and varies heart rate, stress, and focus with a circadian rhythm
// keyed to the time of day.
type Simulator struct {
	deviceID      string
	validatorSeed uint64
}

// NewSimulator builds a simulator for deviceID/validatorID, deriving a
// stable per-validator seed via the shared string-to-seed hash.
func NewSimulator(deviceID, validatorID string) *Simulator {
	return &Simulator{deviceID: deviceID, validatorSeed: utils.StringToSeed(validatorID)}
}

func (s *Simulator) DeviceID() string { return s.deviceID }

func (s *Simulator) IsHealthy() bool { return true }

// CollectReadings synthesizes one heart-rate, stress, and focus reading
// for the current instant, satisfying the Device interface.
func (s *Simulator) CollectReadings() ([]Reading, error) {
	now := time.Now().UnixMilli()
	quality := 0.85 + float64(s.validatorSeed%15)/100.0
	return []Reading{
		{
			DeviceID:  s.deviceID + "_heart",
			Type:      HeartRate,
			Value:     s.generateHeartRate(now),
			Quality:   quality,
			Timestamp: now,
		},
		{
			DeviceID:  s.deviceID + "_stress",
			Type:      StressLevel,
			Value:     s.generateStressLevel(now),
			Quality:   quality,
			Timestamp: now + 100,
		},
		{
			DeviceID:  s.deviceID + "_focus",
			Type:      FocusLevel,
			Value:     s.generateFocusLevel(now),
			Quality:   quality,
			Timestamp: now + 200,
		},
	}, nil
}

const dayMillis = 24.0 * 60.0 * 60.0 * 1000.0

func (s *Simulator) generateHeartRate(timestampMs int64) float64 {
	baseline := 60.0 + float64(s.validatorSeed%25)
	timeOfDay := float64(timestampMs%int64(dayMillis)) / dayMillis
	circadian := 1.0 + 0.15*math.Sin(2.0*math.Pi*(timeOfDay-0.25))
	stressVariation := 0.9 + 0.2*math.Sin(float64(s.validatorSeed)+float64(timestampMs)/300000.0)
	return baseline * circadian * stressVariation
}

func (s *Simulator) generateStressLevel(timestampMs int64) float64 {
	baseStress := float64(s.validatorSeed % 40)
	timeOfDay := float64(timestampMs%int64(dayMillis)) / dayMillis
	workFactor := 0.8
	if timeOfDay >= 0.375 && timeOfDay <= 0.75 {
		workFactor = 1.3
	}
	return math.Min(baseStress*workFactor, 100.0)
}

func (s *Simulator) generateFocusLevel(timestampMs int64) float64 {
	baseFocus := 60.0 + float64(s.validatorSeed%30)
	timeOfDay := float64(timestampMs%int64(dayMillis)) / dayMillis
	circadianFocus := 0.7 + 0.3*math.Max(
		math.Sin(2.0*math.Pi*(timeOfDay-0.25)),
		math.Sin(2.0*math.Pi*(timeOfDay-0.7)),
	)
	return math.Min(baseFocus*circadianFocus, 100.0)
}
