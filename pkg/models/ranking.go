package models

import (
	"encoding/json"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ScoredWindow pairs a window with its reconstruction error.
// Index is the window's position in the scored set.
type ScoredWindow struct {
	Score  float64 `json:"score"`
	Index  int     `json:"index"`
	Window Window  `json:"window,omitempty"`
}

// MarshalJSON encodes a non-finite score as null.
func (sw ScoredWindow) MarshalJSON() ([]byte, error) {
	type alias ScoredWindow
	return json.Marshal(struct {
		alias
		Score *float64 `json:"score"`
	}{alias: alias(sw), Score: finiteOrNil(sw.Score)})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Ranking is the outcome of scoring a set of windows.
// All is sorted by ascending score; Normal holds the lowest-scoring windows
// in non-decreasing order and Anomalous the highest-scoring windows in
// non-increasing order.
type Ranking struct {
	All       []ScoredWindow `json:"-"`
	Normal    []ScoredWindow `json:"normal"`
	Anomalous []ScoredWindow `json:"anomalous"`
}

// ThresholdQuantile is the quantile reported as the summary threshold.
const ThresholdQuantile = 0.95

// ScoreSummary describes the distribution of reconstruction errors.
// Threshold is the score at ThresholdQuantile.
type ScoreSummary struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Threshold float64 `json:"threshold"`
}

// Scores returns the finite scores of All in ascending order.
func (r *Ranking) Scores() []float64 {
	scores := make([]float64, 0, len(r.All))
	for _, sw := range r.All {
		if !math.IsNaN(sw.Score) && !math.IsInf(sw.Score, 0) {
			scores = append(scores, sw.Score)
		}
	}
	// All is already ordered, but a caller may have built the ranking by hand.
	if !sort.Float64sAreSorted(scores) {
		sort.Float64s(scores)
	}
	return scores
}

// Threshold returns the score at quantile q of all finite scores.
// It returns NaN when there are no scores or q lies outside [0,1].
func (r *Ranking) Threshold(q float64) float64 {
	scores := r.Scores()
	if len(scores) == 0 || q < 0 || q > 1 {
		return math.NaN()
	}
	return stat.Quantile(q, stat.Empirical, scores, nil)
}

// Summary computes count, mean, standard deviation, minimum, maximum and
// threshold of the finite scores.
func (r *Ranking) Summary() ScoreSummary {
	scores := r.Scores()
	if len(scores) == 0 {
		return ScoreSummary{}
	}
	mean, std := stat.MeanStdDev(scores, nil)
	if len(scores) == 1 {
		std = 0
	}
	return ScoreSummary{
		Count:     len(scores),
		Mean:      mean,
		StdDev:    std,
		Min:       scores[0],
		Max:       scores[len(scores)-1],
		Threshold: r.Threshold(ThresholdQuantile),
	}
}
