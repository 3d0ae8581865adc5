package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rushteam/cardiokit/core"
)

// Pipeline 把一个子任务拆成可组合的 Stage 链（align -> scale -> score -> ...）。
// Pipeline 本身不持有请求状态，可以被多个 goroutine 并发 Run。
type Pipeline struct {
	Task   string
	Stages []Stage
	Hooks  []Hook
}

// StageError 标识失败的子任务与阶段。
type StageError struct {
	Task  string
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s task failed at stage %s (%s): %v", e.Task, e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Code 返回底层领域错误代码，非领域错误返回 INTERNAL。
func (e *StageError) Code() string {
	if domainErr := core.GetDomainError(e.Err); domainErr != nil {
		return domainErr.Code
	}
	return "INTERNAL"
}

// AsStageError 从错误链中取出 StageError
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Run 依次执行所有 Stage。任何 Stage 失败都会立即停止，并返回 *StageError。
func (p *Pipeline) Run(ctx context.Context, st *State) error {
	start := time.Now()
	err := p.run(ctx, st)
	for _, h := range p.Hooks {
		h.OnFinish(ctx, st, time.Since(start), err)
	}
	return err
}

// NotifyCacheHit 通知实现了 CacheHook 的 Hook：st 的结果来自缓存。
func (p *Pipeline) NotifyCacheHit(ctx context.Context, st *State, err error) {
	if st == nil {
		return
	}
	for _, h := range p.Hooks {
		if ch, ok := h.(CacheHook); ok {
			ch.OnCacheHit(ctx, st, err)
		}
	}
}

func (p *Pipeline) run(ctx context.Context, st *State) error {
	for _, stage := range p.Stages {
		if err := stage.Process(ctx, st); err != nil {
			return &StageError{
				Task:  p.Task,
				Stage: stage.Name(),
				Kind:  stage.Kind(),
				Err:   err,
			}
		}
		for _, h := range p.Hooks {
			h.AfterStage(ctx, st, stage)
		}
	}
	return nil
}
