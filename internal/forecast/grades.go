package forecast

import "math"

const (
	// HistoryLength is the exact number of grades the regression service expects
	HistoryLength = 10

	MinDifficulty     = 1.0
	MaxDifficulty     = 10.0
	DefaultDifficulty = 1.0
)

// BuildTenGrades shapes a chronological grade history into exactly HistoryLength values.
// Longer histories keep the most recent grades; shorter ones are left-padded with the
// oldest grade. An empty history returns nil and must not be sent upstream.
func BuildTenGrades(history []float64) []float64 {
	if len(history) == 0 {
		return nil
	}

	if len(history) >= HistoryLength {
		out := make([]float64, HistoryLength)
		copy(out, history[len(history)-HistoryLength:])
		return out
	}

	out := make([]float64, 0, HistoryLength)
	for i := 0; i < HistoryLength-len(history); i++ {
		out = append(out, history[0])
	}
	return append(out, history...)
}

// ClampDifficulty bounds a difficulty to [MinDifficulty, MaxDifficulty], defaulting when absent
func ClampDifficulty(d *float64) float64 {
	if d == nil || math.IsNaN(*d) {
		return DefaultDifficulty
	}
	return math.Min(MaxDifficulty, math.Max(MinDifficulty, *d))
}

// FiniteGrades drops NaN and infinite values from a history
func FiniteGrades(history []float64) []float64 {
	out := make([]float64, 0, len(history))
	for _, g := range history {
		if !math.IsNaN(g) && !math.IsInf(g, 0) {
			out = append(out, g)
		}
	}
	return out
}
