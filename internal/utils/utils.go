// Package utils collects the small numeric and formatting helpers shared
// across the consensus engine's components: stake-weight transforms,
// statistics used by the biometric gate's trend analysis, and display
// formatting for the POE token.
package utils

import (
	"fmt"
	"math"
)

// StakeWeight reduces whale dominance in committee ranking and reward
// distribution by taking the square root of raw stake.
func StakeWeight(stake uint64) float64 {
	return math.Sqrt(float64(stake))
}

// EmotionalMultiplier scales a reward or weight by how far an emotional
// score sits from threshold, with the distance taken as a fraction of
// 100: below threshold the multiplier is 1 - 0.5*distance, above it is
// 1 + 0.3*distance, the penalty capped at 50% and the bonus at 30%
// (score 100 against threshold 75 gives 1.075, score 0 gives 0.625).
func EmotionalMultiplier(emotionalScore, threshold uint8) float64 {
	if emotionalScore < threshold {
		penalty := float64(threshold-emotionalScore) / 100.0
		return 1.0 - math.Min(penalty*0.5, 0.5)
	}
	bonus := float64(emotionalScore-threshold) / 100.0
	return 1.0 + math.Min(bonus*0.3, 0.3)
}

// Variance computes the population variance of values.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(values))
}

// Mean computes the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Correlation computes the Pearson correlation coefficient between two
// equal-length series, or 0 if the series differ in length, are empty,
// or have zero variance.
func Correlation(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n == 0 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
		sumYY += y[i] * y[i]
	}
	nf := float64(n)
	numerator := nf*sumXY - sumX*sumY
	denominator := math.Sqrt((nf*sumXX - sumX*sumX) * (nf*sumYY - sumY*sumY))
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// SimpleMovingAverage computes the trailing simple moving average of
// values over the given period. Returns an empty slice if there are
// fewer than period values.
func SimpleMovingAverage(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	sma := make([]float64, 0, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		start := i - period + 1
		var sum float64
		for _, v := range values[start : i+1] {
			sum += v
		}
		sma = append(sma, sum/float64(period))
	}
	return sma
}

// DetectAnomalies returns the indices of values that deviate from the
// mean by more than stdThreshold standard deviations.
func DetectAnomalies(values []float64, stdThreshold float64) []int {
	if len(values) == 0 {
		return nil
	}
	mean := Mean(values)
	stdDev := math.Sqrt(Variance(values))
	var anomalies []int
	for i, v := range values {
		if math.Abs(v-mean) > stdThreshold*stdDev {
			anomalies = append(anomalies, i)
		}
	}
	return anomalies
}

// ClampFloat clamps value to [min, max].
func ClampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampU8 clamps value to [min, max] for a uint8-range quantity
// expressed as int, so callers can clamp before converting down.
func ClampU8(value, min, max int) uint8 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return uint8(value)
}

// Percentage expresses part/total as an integer 0-100 percentage,
// returning 0 when total is zero.
func Percentage(part, total int) uint8 {
	if total == 0 {
		return 0
	}
	return uint8((float64(part) / float64(total)) * 100.0)
}

// FormatPOEAmount renders a raw integer POE amount (micro-POE units) as
// a human-readable decimal string, e.g. "1.500000 POE".
func FormatPOEAmount(amount uint64) string {
	whole := amount / 1_000_000
	decimal := amount % 1_000_000
	return fmt.Sprintf("%d.%06d POE", whole, decimal)
}

// StringToSeed derives a deterministic uint64 seed from a string using a
// base-31 polynomial rolling hash, matching the seed the biometric
// simulator uses to derive per-validator baselines.
func StringToSeed(s string) uint64 {
	var seed uint64
	for i := 0; i < len(s); i++ {
		seed = seed*31 + uint64(s[i])
	}
	return seed
}
