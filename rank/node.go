package rank

import (
	"context"

	"github.com/rushteam/cardiokit/model"
	"github.com/rushteam/cardiokit/pipeline"
)

// RiskNode 是风险打分阶段：每个模型独立打分，结果写入 State.Scores。
// - ScoreOrder 保持 Models 的顺序，输出时按此顺序展示
// - 任一模型失败即整个风险任务失败，不会留下部分分数
type RiskNode struct {
	Models []model.BinaryClassifier
}

func (n *RiskNode) Name() string        { return "rank.risk" }
func (n *RiskNode) Kind() pipeline.Kind { return pipeline.KindScore }

func (n *RiskNode) Process(_ context.Context, st *pipeline.State) error {
	for _, m := range n.Models {
		res, err := Score(st.Vector, m)
		if err != nil {
			clear(st.Scores)
			st.ScoreOrder = nil
			return err
		}
		st.Scores[m.Name()] = res
		st.ScoreOrder = append(st.ScoreOrder, m.Name())
	}
	return nil
}

// DistributionNode 是饮食模型打分阶段，结果写入 State.Distribution。
type DistributionNode struct {
	Model model.DistributionModel
}

func (n *DistributionNode) Name() string        { return "rank.distribution" }
func (n *DistributionNode) Kind() pipeline.Kind { return pipeline.KindDistribution }

func (n *DistributionNode) Process(_ context.Context, st *pipeline.State) error {
	dist, err := ScoreDistribution(st.Vector, n.Model)
	if err != nil {
		return err
	}
	st.Distribution = dist
	return nil
}
