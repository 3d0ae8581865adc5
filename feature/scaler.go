package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
)

// StandardScaler Z-score 标准化（训练时拟合，推理时只读）
// 公式: z = (x - μ_i) / σ_i
// 与 sklearn StandardScaler 导出的 mean_ / scale_ 一一对应。
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewStandardScaler 创建标准化器。mean 与 scale 长度必须一致；
// scale 中的 0 按 1 处理（与 sklearn 对常数特征的处理一致）。
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) != len(scale) {
		return nil, core.NewDimensionMismatchError(core.ModuleFeature, len(mean), len(scale))
	}
	s := &StandardScaler{
		Mean:  append([]float64(nil), mean...),
		Scale: make([]float64, len(scale)),
	}
	for i, v := range scale {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			return nil, fmt.Errorf("scaler component %d is not finite", i)
		}
		if v == 0 {
			v = 1
		}
		s.Scale[i] = v
	}
	return s, nil
}

// DecodeStandardScaler 解析 {"mean": [...], "scale": [...]} 格式的产物
func DecodeStandardScaler(data []byte) (*StandardScaler, error) {
	var raw StandardScaler
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	return NewStandardScaler(raw.Mean, raw.Scale)
}

// NumFeatures 返回特征数
func (s *StandardScaler) NumFeatures() int { return len(s.Mean) }

// Transform 逐元素标准化，长度不一致返回 DIMENSION_MISMATCH。纯函数，不修改输入。
func (s *StandardScaler) Transform(vec core.FeatureVector) (core.FeatureVector, error) {
	if len(vec) != len(s.Mean) {
		return nil, core.NewDimensionMismatchError(core.ModuleFeature, len(s.Mean), len(vec))
	}
	out := make(core.FeatureVector, len(vec))
	for i, x := range vec {
		out[i] = (x - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// Inverse 逆变换：x = z * σ_i + μ_i
func (s *StandardScaler) Inverse(vec core.FeatureVector) (core.FeatureVector, error) {
	if len(vec) != len(s.Mean) {
		return nil, core.NewDimensionMismatchError(core.ModuleFeature, len(s.Mean), len(vec))
	}
	out := make(core.FeatureVector, len(vec))
	for i, z := range vec {
		out[i] = z*s.Scale[i] + s.Mean[i]
	}
	return out, nil
}

// ScaleNode 是标准化阶段
type ScaleNode struct {
	Scaler *StandardScaler
}

func (n *ScaleNode) Name() string        { return "feature.scale" }
func (n *ScaleNode) Kind() pipeline.Kind { return pipeline.KindScale }

func (n *ScaleNode) Process(_ context.Context, st *pipeline.State) error {
	if n.Scaler == nil {
		return core.NewMissingArtifactError("scaler", nil)
	}
	scaled, err := n.Scaler.Transform(st.Vector)
	if err != nil {
		return err
	}
	st.Vector = scaled
	return nil
}
