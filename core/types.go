package core

import (
	"sort"
	"strconv"
)

// DecisionThreshold 是二分类决策阈值：probability >= DecisionThreshold 判为阳性。
// 单个模型与集成结果共用。
const DecisionThreshold = 0.5

// FeatureSchema 是某个任务（风险 / 饮食）的有序特征列表，决定 FeatureVector 的布局。
// 加载后不可变，被所有请求共享。
type FeatureSchema []string

// Validate 校验 schema：不能为空、不能有空名称、不能重名。
func (s FeatureSchema) Validate() error {
	if len(s) == 0 {
		return NewSchemaError(ModuleFeature, "feature schema is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for i, name := range s {
		if name == "" {
			return NewSchemaError(ModuleFeature, "feature schema slot %d has empty name", i)
		}
		if _, ok := seen[name]; ok {
			return NewSchemaError(ModuleFeature, "feature schema has duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// InputRecord 是单次请求的原始输入：特征名 -> 原始值（数字、数字字符串、bool 等）。
// 每个请求创建一次，不保留。
type InputRecord map[string]any

// FeatureVector 是按 FeatureSchema 排列的定长浮点向量，每个请求每个任务一个。
type FeatureVector []float64

// Clone 返回向量的拷贝
func (v FeatureVector) Clone() FeatureVector {
	if v == nil {
		return nil
	}
	out := make(FeatureVector, len(v))
	copy(out, v)
	return out
}

// ScoreResult 是二分类模型（或集成）的输出。
type ScoreResult struct {
	Probability float64 `json:"probability"`
	Decision    int     `json:"prediction"`
}

// NewScoreResult 按 DecisionThreshold 生成决策（边界 0.5 判为阳性）。
func NewScoreResult(probability float64) ScoreResult {
	decision := 0
	if probability >= DecisionThreshold {
		decision = 1
	}
	return ScoreResult{Probability: probability, Decision: decision}
}

// Category 是推荐类别（例如饮食方案）：下标 + 可读名称。
type Category struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// LabelMap 是类别下标 -> 名称的映射，加载后不可变。
type LabelMap map[int]string

// Label 返回下标对应的名称；没有映射时返回下标的十进制字符串。
func (m LabelMap) Label(index int) string {
	if label, ok := m[index]; ok {
		return label
	}
	return strconv.Itoa(index)
}

// Category 返回下标对应的 Category
func (m LabelMap) Category(index int) Category {
	return Category{Index: index, Label: m.Label(index)}
}

// Indices 返回已映射的下标（升序）
func (m LabelMap) Indices() []int {
	out := make([]int, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Recommendation 是一条推荐结果：类别 + 概率。
type Recommendation struct {
	Category    Category `json:"category"`
	Probability float64  `json:"probability"`
}
