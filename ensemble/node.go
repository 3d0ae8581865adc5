package ensemble

import (
	"context"
	"strings"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/utils"
)

// CombineNode 是集成阶段：读取 State.Scores，写入 State.Ensemble。
// - 写入 labels：ensemble_policy、ensemble_members
type CombineNode struct {
	Spec Spec
}

func (n *CombineNode) Name() string        { return "ensemble.combine" }
func (n *CombineNode) Kind() pipeline.Kind { return pipeline.KindCombine }

func (n *CombineNode) Process(_ context.Context, st *pipeline.State) error {
	probs := make(map[string]float64, len(st.Scores))
	for name, s := range st.Scores {
		probs[name] = s.Probability
	}
	res, policy, err := Combine(probs, n.Spec)
	if err != nil {
		return err
	}
	members := Members(probs, n.Spec, policy)

	st.Ensemble = &core.ScoreResult{Probability: res.Probability, Decision: res.Decision}
	st.EnsemblePolicy = string(policy)
	st.EnsembleMembers = members
	st.PutLabel("ensemble_policy", utils.Label{Value: string(policy), Source: "combine"})
	st.PutLabel("ensemble_members", utils.Label{Value: strings.Join(members, ","), Source: "combine"})
	return nil
}
