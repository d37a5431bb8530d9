package model

// Ensemble evaluates the trees of a bundle. Every output is
// base_score[c] + aggregate(tree outputs for class c).
type Ensemble struct {
	trees       []Tree
	base        []float64
	aggregation Aggregation
	perOutput   []int
	numFeatures int
}

// NewEnsemble builds an evaluator for a validated bundle.
func NewEnsemble(b *Bundle) *Ensemble {
	perOutput := make([]int, b.Outputs())
	for _, t := range b.Trees {
		perOutput[t.Class]++
	}
	return &Ensemble{
		trees:       b.Trees,
		base:        append([]float64(nil), b.BaseScore...),
		aggregation: b.Aggregation,
		perOutput:   perOutput,
		numFeatures: len(b.FeatureNames),
	}
}

func (e *Ensemble) weight(class int) float64 {
	if e.aggregation == AggregateMean && e.perOutput[class] > 0 {
		return 1 / float64(e.perOutput[class])
	}
	return 1
}

// Raw returns the untransformed ensemble output per class.
func (e *Ensemble) Raw(x []float64) []float64 {
	out := append([]float64(nil), e.base...)
	for _, t := range e.trees {
		out[t.Class] += e.weight(t.Class) * t.Value[t.leaf(x)]
	}
	return out
}

// Explain attributes the raw output to features by walking each decision
// path and crediting every change in node value to the split feature.
// base[c] + sum_i contrib[i][c] equals Raw(x)[c].
func (e *Ensemble) Explain(x []float64) (base []float64, contrib [][]float64) {
	outputs := len(e.base)
	base = append([]float64(nil), e.base...)
	contrib = make([][]float64, e.numFeatures)
	for i := range contrib {
		contrib[i] = make([]float64, outputs)
	}

	for _, t := range e.trees {
		w := e.weight(t.Class)
		base[t.Class] += w * t.Value[0]

		node := 0
		for t.Left[node] != -1 {
			next := t.next(node, x)
			contrib[t.Feature[node]][t.Class] += w * (t.Value[next] - t.Value[node])
			node = next
		}
	}
	return base, contrib
}

func (t Tree) next(node int, x []float64) int {
	if x[t.Feature[node]] <= t.Threshold[node] {
		return t.Left[node]
	}
	return t.Right[node]
}

func (t Tree) leaf(x []float64) int {
	node := 0
	for t.Left[node] != -1 {
		node = t.next(node, x)
	}
	return node
}
