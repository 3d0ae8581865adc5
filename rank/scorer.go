package rank

import (
	"math"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/model"
)

// distributionTolerance 是分布概率之和允许偏离 1 的误差
const distributionTolerance = 1e-3

// Score 用二分类模型给标准化后的向量打分，按 core.DecisionThreshold 给出决策。
func Score(vec core.FeatureVector, m model.BinaryClassifier) (core.ScoreResult, error) {
	if m == nil {
		return core.ScoreResult{}, core.NewInferenceError(nil, "risk model is nil")
	}
	if want := m.NumFeatures(); want > 0 && len(vec) != want {
		return core.ScoreResult{}, core.NewInferenceError(nil,
			"%s: expects %d features, got %d", m.Name(), want, len(vec))
	}
	p, err := m.PredictProba(vec)
	if err != nil {
		if core.IsInferenceError(err) {
			return core.ScoreResult{}, err
		}
		return core.ScoreResult{}, core.NewInferenceError(err, "%s: predict", m.Name())
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return core.ScoreResult{}, core.NewInferenceError(nil, "%s: probability %v out of [0,1]", m.Name(), p)
	}
	return core.NewScoreResult(p), nil
}

// ScoreDistribution 用多分类模型输出类别概率分布。
func ScoreDistribution(vec core.FeatureVector, m model.DistributionModel) ([]float64, error) {
	if m == nil {
		return nil, core.NewInferenceError(nil, "distribution model is nil")
	}
	if want := m.NumFeatures(); want > 0 && len(vec) != want {
		return nil, core.NewInferenceError(nil,
			"%s: expects %d features, got %d", m.Name(), want, len(vec))
	}
	dist, err := m.PredictDistribution(vec)
	if err != nil {
		if core.IsInferenceError(err) {
			return nil, err
		}
		return nil, core.NewInferenceError(err, "%s: predict", m.Name())
	}
	if len(dist) == 0 {
		return nil, core.NewInferenceError(nil, "%s: empty distribution", m.Name())
	}
	if n := m.NumClasses(); n > 0 && len(dist) != n {
		return nil, core.NewInferenceError(nil, "%s: expects %d classes, got %d", m.Name(), n, len(dist))
	}
	sum := 0.0
	for i, p := range dist {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, core.NewInferenceError(nil, "%s: class %d probability %v out of [0,1]", m.Name(), i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > distributionTolerance {
		return nil, core.NewInferenceError(nil, "%s: distribution sums to %v", m.Name(), sum)
	}
	return dist, nil
}
