package rank

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/model"
	"github.com/rushteam/cardiokit/pipeline"
)

type stubClassifier struct {
	name string
	n    int
	p    float64
	err  error
}

func (s *stubClassifier) Name() string     { return s.name }
func (s *stubClassifier) NumFeatures() int { return s.n }
func (s *stubClassifier) PredictProba([]float64) (float64, error) {
	return s.p, s.err
}

type stubDistribution struct {
	n    int
	dist []float64
}

func (s *stubDistribution) Name() string     { return "diet" }
func (s *stubDistribution) NumFeatures() int { return s.n }
func (s *stubDistribution) NumClasses() int  { return len(s.dist) }
func (s *stubDistribution) PredictDistribution([]float64) ([]float64, error) {
	return s.dist, nil
}

func TestScore(t *testing.T) {
	tests := []struct {
		name         string
		m            model.BinaryClassifier
		vec          core.FeatureVector
		wantDecision int
		wantErr      bool
	}{
		{name: "boundary 0.5 is positive", m: &stubClassifier{name: "lr", n: 2, p: 0.5}, vec: core.FeatureVector{0, 0}, wantDecision: 1},
		{name: "just below threshold", m: &stubClassifier{name: "lr", n: 2, p: 0.4999}, vec: core.FeatureVector{0, 0}, wantDecision: 0},
		{name: "nil model", m: nil, vec: core.FeatureVector{0}, wantErr: true},
		{name: "shape mismatch", m: &stubClassifier{name: "lr", n: 3, p: 0.1}, vec: core.FeatureVector{0}, wantErr: true},
		{name: "model error", m: &stubClassifier{name: "lr", n: 1, err: errors.New("boom")}, vec: core.FeatureVector{0}, wantErr: true},
		{name: "nan", m: &stubClassifier{name: "lr", n: 1, p: math.NaN()}, vec: core.FeatureVector{0}, wantErr: true},
		{name: "above one", m: &stubClassifier{name: "lr", n: 1, p: 1.2}, vec: core.FeatureVector{0}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Score(tt.vec, tt.m)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsInferenceError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDecision, res.Decision)
		})
	}
}

func TestScore_LRAtZeroMarginIsPositive(t *testing.T) {
	res, err := Score(core.FeatureVector{3, 4}, model.NewLRModel("logistic_regression", []float64{0, 0}, 0))
	require.NoError(t, err)
	assert.Equal(t, core.ScoreResult{Probability: 0.5, Decision: 1}, res)
}

func TestScoreDistribution(t *testing.T) {
	tests := []struct {
		name    string
		m       model.DistributionModel
		vec     core.FeatureVector
		wantErr bool
	}{
		{name: "ok", m: &stubDistribution{n: 1, dist: []float64{0.1, 0.5, 0.4}}, vec: core.FeatureVector{1}},
		{name: "nil", m: nil, vec: core.FeatureVector{1}, wantErr: true},
		{name: "shape mismatch", m: &stubDistribution{n: 2, dist: []float64{1}}, vec: core.FeatureVector{1}, wantErr: true},
		{name: "empty", m: &stubDistribution{n: 1}, vec: core.FeatureVector{1}, wantErr: true},
		{name: "negative", m: &stubDistribution{n: 1, dist: []float64{1.2, -0.2}}, vec: core.FeatureVector{1}, wantErr: true},
		{name: "not normalized", m: &stubDistribution{n: 1, dist: []float64{0.2, 0.2}}, vec: core.FeatureVector{1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := ScoreDistribution(tt.vec, tt.m)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsInferenceError(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, dist, 3)
		})
	}
}

func TestRiskNode(t *testing.T) {
	st := pipeline.NewState(pipeline.TaskRisk, nil)
	st.Vector = core.FeatureVector{0}
	node := &RiskNode{Models: []model.BinaryClassifier{
		&stubClassifier{name: "logistic_regression", n: 1, p: 0.2},
		&stubClassifier{name: "random_forest", n: 1, p: 0.8},
		&stubClassifier{name: "xgboost", n: 1, p: 0.5},
	}}
	require.NoError(t, node.Process(context.Background(), st))
	assert.Equal(t, []string{"logistic_regression", "random_forest", "xgboost"}, st.ScoreOrder)
	assert.Equal(t, 1, st.Scores["xgboost"].Decision)
	assert.Equal(t, 0, st.Scores["logistic_regression"].Decision)
}

func TestRiskNode_FailureLeavesNoPartialScores(t *testing.T) {
	st := pipeline.NewState(pipeline.TaskRisk, nil)
	st.Vector = core.FeatureVector{0}
	node := &RiskNode{Models: []model.BinaryClassifier{
		&stubClassifier{name: "logistic_regression", n: 1, p: 0.2},
		&stubClassifier{name: "random_forest", n: 2, p: 0.8},
	}}
	err := node.Process(context.Background(), st)
	require.Error(t, err)
	assert.Empty(t, st.Scores)
	assert.Empty(t, st.ScoreOrder)
}

func TestDistributionNode(t *testing.T) {
	st := pipeline.NewState(pipeline.TaskDiet, nil)
	st.Vector = core.FeatureVector{0}
	node := &DistributionNode{Model: &stubDistribution{n: 1, dist: []float64{0.25, 0.75}}}
	require.NoError(t, node.Process(context.Background(), st))
	assert.Equal(t, []float64{0.25, 0.75}, st.Distribution)
}
