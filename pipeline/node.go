package pipeline

import (
	"context"
	"time"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pkg/utils"
)

// Kind 用于标记 Stage 类型，方便观测/治理/编排（例如按阶段打点、定位失败阶段）。
type Kind string

const (
	KindAlign        Kind = "align"        // 特征对齐：InputRecord -> FeatureVector
	KindScale        Kind = "scale"        // 标准化：(x - mean) / scale
	KindScore        Kind = "score"        // 二分类打分：每个风险模型一个 ScoreResult
	KindCombine      Kind = "combine"      // 集成：多个概率 -> 一个决策
	KindDistribution Kind = "distribution" // 多分类打分：类别概率分布
	KindTopK         Kind = "topk"         // Top-K 选择
)

// 任务名称
const (
	TaskRisk = "risk" // 心脏病风险
	TaskDiet = "diet" // 饮食方案推荐
)

// Stage 是 Pipeline 的最小可扩展单元。
// 统一采用“读写 State”的形态；Stage 只能读取共享的只读产物，不能修改它们。
type Stage interface {
	Name() string
	Kind() Kind

	Process(ctx context.Context, st *State) error
}

// State 承载单个子任务在 Pipeline 中流转的中间结果，每个请求每个任务一个，不跨请求共享。
type State struct {
	Task   string
	Record core.InputRecord

	// Schema 是对齐所用的特征顺序，与 Vector 一一对应
	Schema core.FeatureSchema
	// 对齐 / 标准化后的向量（Scale 阶段替换为标准化结果）
	Vector core.FeatureVector
	// Aligned 是对齐后、标准化前的向量，Scale 阶段不会修改它
	Aligned core.FeatureVector
	// Missing 是对齐时缺失（填 0）的特征名
	Missing []string
	// Unparsed 是对齐时无法解析为数字的特征名
	Unparsed []string

	// 风险任务
	Scores          map[string]core.ScoreResult
	ScoreOrder      []string
	Ensemble        *core.ScoreResult
	EnsemblePolicy  string
	EnsembleMembers []string

	// 饮食任务
	Distribution    []float64
	Recommendations []core.Recommendation

	Labels utils.Labels
}

// NewState 创建某个任务的初始 State
func NewState(task string, record core.InputRecord) *State {
	return &State{
		Task:   task,
		Record: record,
		Scores: make(map[string]core.ScoreResult),
		Labels: make(utils.Labels),
	}
}

// PutLabel 写入任务级 Label
func (st *State) PutLabel(key string, lbl utils.Label) {
	if st.Labels == nil {
		st.Labels = make(utils.Labels)
	}
	st.Labels.Put(key, lbl)
}

// Hook 是 Pipeline 的观测扩展点：每个 Stage 成功后调用 AfterStage，任务结束时调用 OnFinish。
// Hook 不得修改 State。
type Hook interface {
	AfterStage(ctx context.Context, st *State, stage Stage)
	OnFinish(ctx context.Context, st *State, elapsed time.Duration, err error)
}

// CacheHook 是 Hook 的可选扩展。请求命中结果缓存、Stage 没有执行时，
// 以缓存时保存的任务终态 st 与任务错误 err 调用 OnCacheHit。
// st 被多个请求共享，只读。
type CacheHook interface {
	OnCacheHit(ctx context.Context, st *State, err error)
}
