package model

import (
	"fmt"
)

// LRModel 实现了逻辑回归 (Logistic Regression) 二分类模型。
//
// 预测原理：
// 1. 线性加权求和: z = Intercept + sum(Coefficients_i * x_i)
// 2. Sigmoid 变换: P = 1 / (1 + exp(-z))
//
// 系数按特征列顺序排列，对应 sklearn 的 coef_[0] 与 intercept_[0]。
type LRModel struct {
	name         string
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func NewLRModel(name string, coefficients []float64, intercept float64) *LRModel {
	return &LRModel{name: name, Coefficients: coefficients, Intercept: intercept}
}

func (m *LRModel) Name() string     { return m.name }
func (m *LRModel) NumFeatures() int { return len(m.Coefficients) }

func (m *LRModel) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("lr: expected %d features, got %d", len(m.Coefficients), len(x))
	}
	z := m.Intercept
	for i, w := range m.Coefficients {
		z += w * x[i]
	}
	return sigmoid(z), nil
}
