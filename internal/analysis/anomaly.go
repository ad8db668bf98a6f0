package analysis

import (
	"math"
	"sort"

	"github.com/AIAleph/chaintrace/internal/normalize"
	"github.com/AIAleph/chaintrace/internal/source"
)

// DefaultAnomalyThreshold is the usual cut-off for modified z-scores.
const DefaultAnomalyThreshold = 3.5

// Scorer assigns an outlier score to every value; higher is more unusual.
type Scorer interface {
	Score(values []float64) []float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(values []float64) []float64

func (f ScorerFunc) Score(values []float64) []float64 { return f(values) }

// RobustZScorer scores values with the modified z-score
// 0.6745*|x-median|/MAD. When more than half the values are equal the MAD is
// zero and the mean absolute deviation, scaled by 1.2533, is used instead.
type RobustZScorer struct{}

func (RobustZScorer) Score(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	med := median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	if mad := median(dev); mad > 0 {
		for i, d := range dev {
			out[i] = 0.6745 * d / mad
		}
		return out
	}
	var sum float64
	for _, d := range dev {
		sum += d
	}
	meanAD := sum / float64(len(dev))
	if meanAD == 0 {
		return out
	}
	for i, d := range dev {
		out[i] = d / (1.2533 * meanAD)
	}
	return out
}

func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Anomaly is a flagged transaction with its score.
type Anomaly struct {
	Tx    source.Transaction
	Units float64
	Score float64
}

// DetectAnomalies scores the amounts of txs and returns those scoring above
// threshold, in input order. Records with a non-numeric value are left out;
// fewer than two numeric values yields nothing. A nil scorer means
// RobustZScorer and a non-positive threshold means DefaultAnomalyThreshold.
func DetectAnomalies(txs []source.Transaction, decimals int, scorer Scorer, threshold float64) []Anomaly {
	if scorer == nil {
		scorer = RobustZScorer{}
	}
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}
	kept := make([]source.Transaction, 0, len(txs))
	values := make([]float64, 0, len(txs))
	for _, tx := range txs {
		if tx.Value == "" {
			continue
		}
		u, ok := normalize.Units(tx.Value, decimals)
		if !ok {
			continue
		}
		kept = append(kept, tx)
		values = append(values, u)
	}
	if len(values) < 2 {
		return nil
	}
	scores := scorer.Score(values)
	var out []Anomaly
	for i, s := range scores {
		if i >= len(kept) {
			break
		}
		if s > threshold {
			out = append(out, Anomaly{Tx: kept[i], Units: values[i], Score: s})
		}
	}
	return out
}
