package rerank

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
)

var mealPlans = core.LabelMap{0: "Low-Carb", 1: "Mediterranean", 2: "DASH"}

func indices(recs []core.Recommendation) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Category.Index
	}
	return out
}

func TestSelectTopK(t *testing.T) {
	tests := []struct {
		name string
		dist []float64
		k    int
		want []int
	}{
		{name: "descending", dist: []float64{0.1, 0.5, 0.4}, k: 3, want: []int{1, 2, 0}},
		{name: "k clamped", dist: []float64{0.1, 0.5, 0.4}, k: 10, want: []int{1, 2, 0}},
		{name: "k zero", dist: []float64{0.1, 0.5, 0.4}, k: 0, want: []int{}},
		{name: "k negative", dist: []float64{0.1, 0.5, 0.4}, k: -1, want: []int{}},
		{name: "ties by ascending index", dist: []float64{0.25, 0.25, 0.25, 0.25}, k: 3, want: []int{0, 1, 2}},
		{name: "partial ties", dist: []float64{0.1, 0.3, 0.3, 0.3}, k: 2, want: []int{1, 2}},
		{name: "empty", dist: nil, k: 3, want: []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := SelectTopK(tt.dist, mealPlans, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indices(recs))
		})
	}
}

func TestSelectTopK_Labels(t *testing.T) {
	recs, err := SelectTopK([]float64{0.1, 0.5, 0.4, 0.0}, mealPlans, 4)
	require.NoError(t, err)
	assert.Equal(t, "Mediterranean", recs[0].Category.Label)
	assert.Equal(t, 0.5, recs[0].Probability)
	assert.Equal(t, "3", recs[3].Category.Label, "unmapped index falls back to its number")
}

func TestSelectTop1_EqualsFirstOfTopK(t *testing.T) {
	dists := [][]float64{
		{0.1, 0.5, 0.4},
		{0.3, 0.3, 0.4},
		{0.5, 0.5},
		{1},
	}
	for _, dist := range dists {
		top1, err := SelectTop1(dist, mealPlans)
		require.NoError(t, err)
		top3, err := SelectTopK(dist, mealPlans, 3)
		require.NoError(t, err)
		assert.Equal(t, top3[0], top1)
	}

	_, err := SelectTop1(nil, mealPlans)
	assert.True(t, core.IsInferenceError(err))
}

func TestSelectTopK_NaN(t *testing.T) {
	_, err := SelectTopK([]float64{0.5, math.NaN()}, mealPlans, 2)
	assert.True(t, core.IsInferenceError(err))
}

func TestTopKNode(t *testing.T) {
	st := pipeline.NewState(pipeline.TaskDiet, nil)
	st.Distribution = []float64{0.05, 0.5, 0.3, 0.15}

	require.NoError(t, (&TopKNode{Labels: mealPlans}).Process(context.Background(), st))
	assert.Equal(t, []int{1, 2, 3}, indices(st.Recommendations))
	assert.Equal(t, "Mediterranean", st.Labels["predicted_category"].Value)

	empty := pipeline.NewState(pipeline.TaskDiet, nil)
	assert.Error(t, (&TopKNode{K: 3}).Process(context.Background(), empty))
}
