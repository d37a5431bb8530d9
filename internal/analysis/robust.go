package analysis

import (
	"math"
	"sort"
)

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func sortedCopy(xs []float64) []float64 {
	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	return cp
}

// Round rounds x to the given number of decimals, halves away from zero.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}

// TopContributors orders an importance map by absolute value, largest first.
// Ties are broken by name so output is stable.
func TopContributors(importance map[string]float64, k int) []Contributor {
	out := make([]Contributor, 0, len(importance))
	for name, v := range importance {
		out = append(out, Contributor{Name: name, Contribution: v})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Contribution), math.Abs(out[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return out[i].Name < out[j].Name
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
