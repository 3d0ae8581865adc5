package model

import (
	"errors"
	"fmt"
)

// TreeNode 是扁平存储的决策树节点，子节点用数组下标引用。
type TreeNode struct {
	Feature   int     `json:"feature"`   // 分裂特征下标，叶子节点为 -1
	Threshold float64 `json:"threshold"` // 分裂阈值
	Left      int     `json:"left"`      // 左子节点下标
	Right     int     `json:"right"`     // 右子节点下标
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"` // 叶子值：随机森林为阳性类占比，GBDT 为 margin 增量
}

// Tree 是一棵决策树，Nodes[0] 为根节点。
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// validate 检查节点引用合法，避免推理时越界或死循环。
func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= numFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid children (%d, %d)", i, n.Left, n.Right)
		}
	}
	return nil
}

// leaf 沿树下行返回叶子值。
// strict 为 true 时 x < threshold 走左（XGBoost 语义），否则 x <= threshold 走左（sklearn 语义）。
// validate 保证子节点下标严格递增，因此循环必然终止。
func (t *Tree) leaf(x []float64, strict bool) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		goLeft := v <= n.Threshold
		if strict {
			goLeft = v < n.Threshold
		}
		if goLeft {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// RandomForestModel 是随机森林二分类模型：概率 = 所有树叶子阳性类占比的平均值
// （与 sklearn RandomForestClassifier.predict_proba 一致）。
type RandomForestModel struct {
	name      string
	NFeatures int    `json:"n_features"`
	Trees     []Tree `json:"trees"`
}

func NewRandomForestModel(name string, nFeatures int, trees []Tree) (*RandomForestModel, error) {
	m := &RandomForestModel{name: name, NFeatures: nFeatures, Trees: trees}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RandomForestModel) validate() error {
	if m.NFeatures <= 0 {
		return errors.New("random_forest: n_features must be positive")
	}
	if len(m.Trees) == 0 {
		return errors.New("random_forest: no trees")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.NFeatures); err != nil {
			return fmt.Errorf("random_forest: tree %d: %w", i, err)
		}
	}
	return nil
}

func (m *RandomForestModel) Name() string     { return m.name }
func (m *RandomForestModel) NumFeatures() int { return m.NFeatures }

func (m *RandomForestModel) PredictProba(x []float64) (float64, error) {
	if len(x) != m.NFeatures {
		return 0, fmt.Errorf("random_forest: expected %d features, got %d", m.NFeatures, len(x))
	}
	sum := 0.0
	for i := range m.Trees {
		sum += m.Trees[i].leaf(x, false)
	}
	return sum / float64(len(m.Trees)), nil
}

// GBDTModel 是梯度提升树二分类模型（XGBoost binary:logistic 导出）：
// 概率 = sigmoid(BaseMargin + sum(叶子值))。
// BaseMargin 是 base_score 在 logit 空间的值（base_score=0.5 时为 0）。
type GBDTModel struct {
	name       string
	NFeatures  int     `json:"n_features"`
	BaseMargin float64 `json:"base_margin"`
	Trees      []Tree  `json:"trees"`
}

func NewGBDTModel(name string, nFeatures int, baseMargin float64, trees []Tree) (*GBDTModel, error) {
	m := &GBDTModel{name: name, NFeatures: nFeatures, BaseMargin: baseMargin, Trees: trees}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GBDTModel) validate() error {
	if m.NFeatures <= 0 {
		return errors.New("gbdt: n_features must be positive")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.NFeatures); err != nil {
			return fmt.Errorf("gbdt: tree %d: %w", i, err)
		}
	}
	return nil
}

func (m *GBDTModel) Name() string     { return m.name }
func (m *GBDTModel) NumFeatures() int { return m.NFeatures }

func (m *GBDTModel) PredictProba(x []float64) (float64, error) {
	if len(x) != m.NFeatures {
		return 0, fmt.Errorf("gbdt: expected %d features, got %d", m.NFeatures, len(x))
	}
	margin := m.BaseMargin
	for i := range m.Trees {
		margin += m.Trees[i].leaf(x, true)
	}
	return sigmoid(margin), nil
}
