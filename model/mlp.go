package model

import (
	"errors"
	"fmt"
	"math"
)

// 激活函数名称
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationSoftmax = "softmax"
)

// DenseLayer 是全连接层：out_j = act(Bias_j + sum_k Weights[j][k] * in_k)
type DenseLayer struct {
	// Weights[neuron][input] = weight
	Weights [][]float64 `json:"weights"`
	// Bias[neuron] = bias
	Bias       []float64 `json:"bias"`
	Activation string    `json:"activation"`
}

// MLPModel 是多层感知机（Deep Neural Network）多分类模型，用于饮食方案推荐。
//
// 工程特征：
//   - 实时性：好（本地推理）
//   - 计算复杂度：中等（多层全连接）
//   - 可解释性：弱（黑盒模型）
//
// 最后一层通常是 softmax，输出每个饮食方案的概率。
// 如果最后一层不是 softmax，推理时会对输出再做一次 softmax，保证输出是分布。
type MLPModel struct {
	name   string
	Layers []DenseLayer `json:"layers"`
}

// NewMLPModel 创建模型并校验层间维度
func NewMLPModel(name string, layers []DenseLayer) (*MLPModel, error) {
	m := &MLPModel{name: name, Layers: layers}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MLPModel) validate() error {
	if len(m.Layers) == 0 {
		return errors.New("mlp: no layers")
	}
	inputs := -1
	for i, l := range m.Layers {
		if len(l.Weights) == 0 || len(l.Weights) != len(l.Bias) {
			return fmt.Errorf("mlp: layer %d has %d neurons but %d biases", i, len(l.Weights), len(l.Bias))
		}
		width := len(l.Weights[0])
		if width == 0 {
			return fmt.Errorf("mlp: layer %d has zero inputs", i)
		}
		for j, row := range l.Weights {
			if len(row) != width {
				return fmt.Errorf("mlp: layer %d neuron %d has %d inputs, want %d", i, j, len(row), width)
			}
		}
		if inputs >= 0 && width != inputs {
			return fmt.Errorf("mlp: layer %d expects %d inputs, previous layer outputs %d", i, width, inputs)
		}
		switch l.Activation {
		case "", ActivationLinear, ActivationReLU, ActivationSigmoid, ActivationSoftmax:
		default:
			return fmt.Errorf("mlp: layer %d has unknown activation %q", i, l.Activation)
		}
		inputs = len(l.Weights)
	}
	return nil
}

func (m *MLPModel) Name() string     { return m.name }
func (m *MLPModel) NumFeatures() int { return len(m.Layers[0].Weights[0]) }
func (m *MLPModel) NumClasses() int  { return len(m.Layers[len(m.Layers)-1].Bias) }

// PredictDistribution 前向传播并输出类别概率分布。
func (m *MLPModel) PredictDistribution(x []float64) ([]float64, error) {
	if len(x) != m.NumFeatures() {
		return nil, fmt.Errorf("mlp: expected %d features, got %d", m.NumFeatures(), len(x))
	}
	current := x
	for _, l := range m.Layers {
		current = l.forward(current)
	}
	if m.Layers[len(m.Layers)-1].Activation != ActivationSoftmax {
		current = softmax(current)
	}
	return current, nil
}

// forward 单层前向传播。
func (l *DenseLayer) forward(in []float64) []float64 {
	z := make([]float64, len(l.Weights))
	for j, row := range l.Weights {
		sum := l.Bias[j]
		for k, w := range row {
			sum += w * in[k]
		}
		z[j] = sum
	}
	switch l.Activation {
	case ActivationReLU:
		for j := range z {
			z[j] = math.Max(0, z[j])
		}
	case ActivationSigmoid:
		for j := range z {
			z[j] = sigmoid(z[j])
		}
	case ActivationSoftmax:
		z = softmax(z)
	}
	return z
}
