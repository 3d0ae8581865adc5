// Package inference 把各阶段组装成风险 / 饮食两条 Pipeline，并对外提供单次预测。
package inference

import (
	"context"
	"sync"

	"github.com/rushteam/cardiokit/artifact"
	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/ensemble"
	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/model"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/dsl"
	"github.com/rushteam/cardiokit/rank"
	"github.com/rushteam/cardiokit/rerank"
)

// Options 控制 Context 的构建方式
type Options struct {
	// Weighting 集成权重策略，默认 accuracy
	Weighting ensemble.Weighting
	// TopN 参与集成的模型数量，默认 2
	TopN int
	// Spec 非 nil 时直接使用，不再从准确率报告推导
	Spec *ensemble.Spec
	// TopK 饮食推荐数量，默认 3
	TopK int
	// NonNumeric 对齐时非数字字段的处理策略
	NonNumeric feature.NonNumericPolicy
	// Rules 输入范围校验规则，不通过只产生警告
	Rules *dsl.RuleSet
	// Hooks 观测扩展点，挂在两条 Pipeline 上
	Hooks []pipeline.Hook
}

// Context 持有所有只读的共享状态：产物、集成 Spec、两条 Pipeline。
// 进程启动时构建一次，之后被所有请求并发读取，不会被修改。
type Context struct {
	Bundle *artifact.Bundle
	Spec   ensemble.Spec
	Rules  *dsl.RuleSet

	Risk *pipeline.Pipeline
	Diet *pipeline.Pipeline
}

// NewContext 校验产物之间的一致性并组装 Pipeline。
// schema 非法返回 SchemaError；scaler / 模型维度与 schema 不一致返回 DimensionMismatch。
func NewContext(b *artifact.Bundle, opts Options) (*Context, error) {
	if b == nil {
		return nil, core.NewMissingArtifactError("bundle", nil)
	}
	if b.RiskScaler == nil {
		return nil, core.NewMissingArtifactError(artifact.KeyScaler, nil)
	}
	if b.DietScaler == nil {
		return nil, core.NewMissingArtifactError(artifact.KeyDietScaler, nil)
	}
	if err := b.RiskSchema.Validate(); err != nil {
		return nil, err
	}
	if err := b.DietSchema.Validate(); err != nil {
		return nil, err
	}
	if err := checkWidth(len(b.RiskSchema), b.RiskScaler.NumFeatures()); err != nil {
		return nil, err
	}
	if err := checkWidth(len(b.DietSchema), b.DietScaler.NumFeatures()); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(b.RiskModels))
	for _, m := range b.RiskModels {
		if m == nil {
			return nil, core.NewMissingArtifactError("risk model", nil)
		}
		if err := checkModel(len(b.RiskSchema), m); err != nil {
			return nil, err
		}
		names = append(names, m.Name())
	}
	if b.DietModel == nil {
		return nil, core.NewMissingArtifactError(artifact.KeyDietModel, nil)
	}
	if err := checkModel(len(b.DietSchema), b.DietModel); err != nil {
		return nil, err
	}

	var spec ensemble.Spec
	if opts.Spec != nil {
		spec = *opts.Spec
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	} else {
		var err error
		spec, err = ensemble.SpecFromReport(b.Report, opts.TopN, opts.Weighting, names...)
		if err != nil {
			return nil, err
		}
	}

	c := &Context{Bundle: b, Spec: spec, Rules: opts.Rules}
	c.Risk = &pipeline.Pipeline{
		Task: pipeline.TaskRisk,
		Stages: []pipeline.Stage{
			&feature.AlignNode{Schema: b.RiskSchema, Policy: opts.NonNumeric},
			&feature.ScaleNode{Scaler: b.RiskScaler},
			&rank.RiskNode{Models: b.RiskModels},
			&ensemble.CombineNode{Spec: spec},
		},
		Hooks: opts.Hooks,
	}
	mapping := b.IndicatorMapping
	if mapping == nil {
		mapping = map[string]string{}
	}
	c.Diet = &pipeline.Pipeline{
		Task: pipeline.TaskDiet,
		Stages: []pipeline.Stage{
			&feature.AlignNode{Schema: b.DietSchema, Mapping: mapping, Policy: opts.NonNumeric},
			&feature.ScaleNode{Scaler: b.DietScaler},
			&rank.DistributionNode{Model: b.DietModel},
			&rerank.TopKNode{K: opts.TopK, Labels: b.MealPlans},
		},
		Hooks: opts.Hooks,
	}
	return c, nil
}

func checkWidth(want, got int) error {
	if want != got {
		return core.NewDimensionMismatchError(core.ModuleFeature, want, got)
	}
	return nil
}

func checkModel(width int, m model.Model) error {
	if n := m.NumFeatures(); n > 0 && n != width {
		return core.WrapDomainError(core.ModuleModel, core.ErrorCodeDimensionMismatch, nil,
			"%s expects %d features, schema has %d", m.Name(), n, width)
	}
	return nil
}

// Loader 懒加载 Context，保证构建只发生一次；并发调用 Load 得到同一个结果。
type Loader struct {
	once  sync.Once
	build func(ctx context.Context) (*Context, error)
	c     *Context
	err   error
}

func NewLoader(build func(ctx context.Context) (*Context, error)) *Loader {
	return &Loader{build: build}
}

// Load 第一次调用时执行构建，之后返回缓存的 Context 或错误
func (l *Loader) Load(ctx context.Context) (*Context, error) {
	l.once.Do(func() {
		l.c, l.err = l.build(ctx)
	})
	return l.c, l.err
}

// LoadFromStore 返回从 store 读取产物并构建 Context 的函数，供 NewLoader 使用
func LoadFromStore(s core.Store, opts Options) func(ctx context.Context) (*Context, error) {
	return func(ctx context.Context) (*Context, error) {
		b, err := artifact.LoadBundle(ctx, s)
		if err != nil {
			return nil, err
		}
		return NewContext(b, opts)
	}
}
