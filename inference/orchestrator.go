package inference

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/utils"
)

// Predictor 是单次预测的抽象，Orchestrator 与 CachedPredictor 都实现它
type Predictor interface {
	Predict(ctx context.Context, record core.InputRecord) (*Result, error)
}

// Orchestrator 对每个请求并行执行风险与饮食两个子任务。
//
// 错误传播：
//   - 两个子任务互相独立，一个失败不影响另一个的结果
//   - 任一子任务出现 SchemaError 时整个请求失败
//   - 两个子任务都失败时返回 errors.Join 后的错误
type Orchestrator struct {
	c *Context
}

func NewOrchestrator(c *Context) *Orchestrator {
	return &Orchestrator{c: c}
}

// Context 返回共享的只读状态
func (o *Orchestrator) Context() *Context { return o.c }

func (o *Orchestrator) Predict(ctx context.Context, record core.InputRecord) (*Result, error) {
	if o.c == nil {
		return nil, core.NewMissingArtifactError("inference context", nil)
	}
	if record == nil {
		return nil, core.NewDomainError("inference", core.ErrorCodeInvalidInput, "record is required")
	}

	riskSt := pipeline.NewState(pipeline.TaskRisk, record)
	dietSt := pipeline.NewState(pipeline.TaskDiet, record)

	// 子任务的普通失败只记录在各自的 err 中；SchemaError 经 errgroup 返回，取消另一个子任务
	var riskErr, dietErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		riskErr = o.c.Risk.Run(gctx, riskSt)
		return abortErr(riskErr)
	})
	g.Go(func() error {
		dietErr = o.c.Diet.Run(gctx, dietSt)
		return abortErr(dietErr)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if riskErr != nil && dietErr != nil {
		return nil, errors.Join(riskErr, dietErr)
	}

	res := &Result{
		RiskErr:   riskErr,
		DietErr:   dietErr,
		Labels:    make(utils.Labels),
		riskState: riskSt,
		dietState: dietSt,
	}
	if riskErr == nil {
		res.Risk = riskReport(riskSt)
		res.Labels.Merge(riskSt.Labels)
	}
	if dietErr == nil {
		res.Diet = dietReport(dietSt)
		res.Labels.Merge(dietSt.Labels)
	}
	if violations := o.c.Rules.Check(record); len(violations) > 0 {
		res.Warnings = violations
		for _, v := range violations {
			res.Labels.Put("validation", utils.Label{Value: v.Field, Source: "rules"})
		}
	}
	return res, nil
}

// abortErr 返回需要让整个请求失败的错误
func abortErr(err error) error {
	if core.IsSchemaError(err) {
		return err
	}
	return nil
}

// ObserveCached 在 res 来自缓存时通知两个 Pipeline 的 Hook，
// 使按请求统计的指标与特征监控也覆盖缓存命中。
func (o *Orchestrator) ObserveCached(ctx context.Context, res *Result) {
	if o.c == nil || res == nil {
		return
	}
	o.c.Risk.NotifyCacheHit(ctx, res.riskState, res.RiskErr)
	o.c.Diet.NotifyCacheHit(ctx, res.dietState, res.DietErr)
}

var (
	_ Predictor     = (*Orchestrator)(nil)
	_ CacheObserver = (*Orchestrator)(nil)
)
