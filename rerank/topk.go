package rerank

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/utils"
)

// DefaultK 是饮食推荐返回的方案数量
const DefaultK = 3

// SelectTopK 从概率分布中选出概率最高的 k 个类别，按概率严格降序排列；
// 概率相同时下标小的在前。k 被截断到 [0, len(dist)]。
// labels 中没有的下标用十进制下标作为名称。
func SelectTopK(dist []float64, labels core.LabelMap, k int) ([]core.Recommendation, error) {
	for i, p := range dist {
		if math.IsNaN(p) {
			return nil, core.NewDomainError(core.ModuleRerank, core.ErrorCodeInference,
				"topk: probability of class "+strconv.Itoa(i)+" is NaN")
		}
	}
	if k > len(dist) {
		k = len(dist)
	}
	if k <= 0 {
		return []core.Recommendation{}, nil
	}

	idx := make([]int, len(dist))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		pa, pb := dist[idx[a]], dist[idx[b]]
		if pa != pb {
			return pa > pb
		}
		return idx[a] < idx[b]
	})

	out := make([]core.Recommendation, k)
	for i := 0; i < k; i++ {
		out[i] = core.Recommendation{
			Category:    labels.Category(idx[i]),
			Probability: dist[idx[i]],
		}
	}
	return out, nil
}

// SelectTop1 返回概率最高的类别，等价于 SelectTopK(dist, labels, 1)[0]。
func SelectTop1(dist []float64, labels core.LabelMap) (core.Recommendation, error) {
	if len(dist) == 0 {
		return core.Recommendation{}, core.NewDomainError(core.ModuleRerank, core.ErrorCodeInference, "topk: empty distribution")
	}
	recs, err := SelectTopK(dist, labels, 1)
	if err != nil {
		return core.Recommendation{}, err
	}
	return recs[0], nil
}

// TopKNode 是 Top-K 选择阶段，读取 State.Distribution，写入 State.Recommendations。
// K <= 0 时使用 DefaultK。
//
// 示例：
//
//	stages := []pipeline.Stage{
//	    &rank.DistributionNode{Model: dietModel},
//	    &rerank.TopKNode{K: 3, Labels: mealPlans},
//	}
type TopKNode struct {
	K      int
	Labels core.LabelMap
}

func (n *TopKNode) Name() string        { return "rerank.topk" }
func (n *TopKNode) Kind() pipeline.Kind { return pipeline.KindTopK }

func (n *TopKNode) Process(_ context.Context, st *pipeline.State) error {
	k := n.K
	if k <= 0 {
		k = DefaultK
	}
	if len(st.Distribution) == 0 {
		return core.NewDomainError(core.ModuleRerank, core.ErrorCodeInference, "topk: empty distribution")
	}
	recs, err := SelectTopK(st.Distribution, n.Labels, k)
	if err != nil {
		return err
	}
	st.Recommendations = recs
	st.PutLabel("predicted_category", utils.Label{Value: recs[0].Category.Label, Source: "topk"})
	return nil
}
