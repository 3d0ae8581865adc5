package ensemble

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rushteam/cardiokit/core"
)

// Metrics 是单个模型在测试集 / 验证集上的指标
type Metrics struct {
	Accuracy     float64 `json:"accuracy"`
	Precision    float64 `json:"precision"`
	Recall       float64 `json:"recall"`
	F1Score      float64 `json:"f1_score"`
	ValAccuracy  float64 `json:"val_accuracy,omitempty"`
	ValPrecision float64 `json:"val_precision,omitempty"`
	ValRecall    float64 `json:"val_recall,omitempty"`
	ValF1Score   float64 `json:"val_f1_score,omitempty"`
}

// EnsembleMetrics 是集成模型的指标以及训练期选出的 top 模型
type EnsembleMetrics struct {
	Metrics
	TopModels []string `json:"top_models"`
}

// Report 是训练产物 model_results.json：
//
//	{"logistic_regression": {...}, "random_forest": {...}, "xgboost": {...},
//	 "ensemble": {"accuracy": ..., "top_models": ["xgboost", "random_forest"]}}
type Report struct {
	Models   map[string]Metrics
	Ensemble *EnsembleMetrics
}

const ensembleKey = "ensemble"

func (r *Report) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Models = make(map[string]Metrics, len(raw))
	r.Ensemble = nil
	for name, body := range raw {
		if name == ensembleKey {
			var em EnsembleMetrics
			if err := json.Unmarshal(body, &em); err != nil {
				return fmt.Errorf("ensemble: %w", err)
			}
			r.Ensemble = &em
			continue
		}
		var m Metrics
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		r.Models[name] = m
	}
	return nil
}

func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Models)+1)
	for name, m := range r.Models {
		out[name] = m
	}
	if r.Ensemble != nil {
		out[ensembleKey] = r.Ensemble
	}
	return json.Marshal(out)
}

// DecodeReport 解析准确率报告
func DecodeReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, core.WrapDomainError(core.ModuleEnsemble, core.ErrorCodeInvalidInput, err, "decode model report")
	}
	return &r, nil
}

// Ranked 按 accuracy 降序返回模型名，accuracy 相同时按名称升序
func (r *Report) Ranked() []string {
	names := make([]string, 0, len(r.Models))
	for name := range r.Models {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := r.Models[names[i]].Accuracy, r.Models[names[j]].Accuracy
		if ai != aj {
			return ai > aj
		}
		return names[i] < names[j]
	})
	return names
}

// Weighting 是集成权重策略
type Weighting string

const (
	// WeightingEqual 选中的模型等权（与训练脚本计算集成指标的方式一致）
	WeightingEqual Weighting = "equal"
	// WeightingAccuracy 以各模型的测试集 accuracy 作为权重
	WeightingAccuracy Weighting = "accuracy"
)

// ParseWeighting 解析权重策略，空字符串为 WeightingAccuracy
func ParseWeighting(s string) (Weighting, error) {
	switch Weighting(s) {
	case "", WeightingAccuracy:
		return WeightingAccuracy, nil
	case WeightingEqual:
		return WeightingEqual, nil
	default:
		return "", fmt.Errorf("unknown ensemble weighting %q", s)
	}
}

// DefaultTopN 是参与集成的模型数量
const DefaultTopN = 2

// SpecFromReport 从准确率报告构建一次 Spec。
//
// 报告中已有 ensemble.top_models 时直接使用（训练期已经选好）；
// 否则按 accuracy 排名取前 topN 个。available 非空时只保留已加载的模型。
func SpecFromReport(report *Report, topN int, weighting Weighting, available ...string) (Spec, error) {
	if report == nil {
		return Spec{}, core.NewDomainError(core.ModuleEnsemble, core.ErrorCodeInvalidInput, "ensemble: nil model report")
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	var candidates []string
	if report.Ensemble != nil && len(report.Ensemble.TopModels) > 0 {
		candidates = report.Ensemble.TopModels
	} else {
		candidates = report.Ranked()
	}

	allowed := make(map[string]struct{}, len(available))
	for _, name := range available {
		allowed[name] = struct{}{}
	}
	models := make([]string, 0, topN)
	for _, name := range candidates {
		if len(models) == topN {
			break
		}
		if len(allowed) > 0 {
			if _, ok := allowed[name]; !ok {
				continue
			}
		}
		models = append(models, name)
	}

	spec := Spec{Models: models}
	switch weighting {
	case WeightingEqual:
	case WeightingAccuracy, "":
		spec.Weights = make(map[string]float64, len(models))
		for _, name := range models {
			spec.Weights[name] = report.Models[name].Accuracy
		}
	default:
		return Spec{}, fmt.Errorf("unknown ensemble weighting %q", weighting)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
