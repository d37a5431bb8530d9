// Package attribution converts per-class additive contributions in logit space
// into signed per-feature probability attributions.
//
// Contributions are applied one feature at a time in schema order. Each step
// records how far the softmax probabilities moved, so the per-feature deltas
// telescope to final - base but depend on the order of application.
package attribution

import (
	"fmt"
	"math"
	"sort"
)

// Decomposition holds the probability trajectory of one explanation.
type Decomposition struct {
	// BaseProb is softmax(base).
	BaseProb []float64
	// FinalProb is softmax(base + sum of all contributions).
	FinalProb []float64
	// Deltas[i][c] is the change in class c probability when feature i was applied.
	Deltas [][]float64
}

// Ranked is one feature of a ranking.
type Ranked struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Options controls ranking.
type Options struct {
	TopK  int
	Scale float64
	// Decimals rounds scaled values; negative disables rounding.
	Decimals int
}

// DefaultOptions keeps the four strongest features scaled by 25 and rounded
// to two decimals.
func DefaultOptions() Options {
	return Options{TopK: 4, Scale: 25, Decimals: 2}
}

// Result is a full attribution for a single sample.
type Result struct {
	Decomposition
	Signed     []float64
	Ranking    []Ranked
	Importance map[string]float64
}

// Softmax computes a numerically stable softmax.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	m := logits[0]
	for _, v := range logits[1:] {
		if v > m {
			m = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - m)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Decompose applies contrib row by row on top of base. base has one entry per
// class and contrib is indexed [feature][class].
func Decompose(base []float64, contrib [][]float64) (Decomposition, error) {
	classes := len(base)
	if classes == 0 {
		return Decomposition{}, fmt.Errorf("base values are empty")
	}
	for i, row := range contrib {
		if len(row) != classes {
			return Decomposition{}, fmt.Errorf("contribution row %d has %d classes, base has %d", i, len(row), classes)
		}
	}

	logits := append([]float64(nil), base...)
	prev := Softmax(logits)
	d := Decomposition{
		BaseProb: prev,
		Deltas:   make([][]float64, len(contrib)),
	}

	for i, row := range contrib {
		for c := range logits {
			logits[c] += row[c]
		}
		cur := Softmax(logits)
		delta := make([]float64, classes)
		for c := range cur {
			delta[c] = cur[c] - prev[c]
		}
		d.Deltas[i] = delta
		prev = cur
	}
	d.FinalProb = prev
	return d, nil
}

// Signed reduces each delta row to lowest-class minus highest-class change.
// Positive values push toward the first class.
func Signed(deltas [][]float64) []float64 {
	out := make([]float64, len(deltas))
	for i, row := range deltas {
		if len(row) == 0 {
			continue
		}
		out[i] = row[0] - row[len(row)-1]
	}
	return out
}

// Rank orders features by absolute score, largest first. Ties keep schema
// order. The first TopK entries are scaled and rounded.
func Rank(names []string, scores []float64, opts Options) ([]Ranked, error) {
	if len(names) != len(scores) {
		return nil, fmt.Errorf("%d feature names for %d scores", len(names), len(scores))
	}

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(scores[idx[a]]) > math.Abs(scores[idx[b]])
	})

	k := opts.TopK
	if k <= 0 || k > len(idx) {
		k = len(idx)
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	out := make([]Ranked, k)
	for r, i := range idx[:k] {
		v := scores[i] * scale
		if opts.Decimals >= 0 {
			p := math.Pow(10, float64(opts.Decimals))
			v = math.Round(v*p) / p
		}
		out[r] = Ranked{Name: names[i], Value: v}
	}
	return out, nil
}

// Attribute runs Decompose, Signed and Rank for one sample.
func Attribute(names []string, base []float64, contrib [][]float64, opts Options) (Result, error) {
	if len(names) != len(contrib) {
		return Result{}, fmt.Errorf("%d feature names for %d contribution rows", len(names), len(contrib))
	}

	d, err := Decompose(base, contrib)
	if err != nil {
		return Result{}, err
	}
	signed := Signed(d.Deltas)

	ranking, err := Rank(names, signed, opts)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Decomposition: d,
		Signed:        signed,
		Ranking:       ranking,
		Importance:    ToMap(ranking),
	}, nil
}

// ToMap converts a ranking to a name -> value map.
func ToMap(ranking []Ranked) map[string]float64 {
	out := make(map[string]float64, len(ranking))
	for _, r := range ranking {
		out[r.Name] = r.Value
	}
	return out
}
