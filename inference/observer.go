package inference

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rushteam/cardiokit/pipeline"
)

// LogObserver 在每个阶段结束后输出结构化日志（debug），任务结束时输出汇总（info / warn）。
type LogObserver struct {
	Logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) AfterStage(_ context.Context, st *pipeline.State, stage pipeline.Stage) {
	if ce := o.Logger.Check(zap.DebugLevel, "stage done"); ce != nil {
		fields := []zap.Field{
			zap.String("task", st.Task),
			zap.String("stage", stage.Name()),
		}
		switch stage.Kind() {
		case pipeline.KindAlign:
			fields = append(fields,
				zap.Int("features", len(st.Vector)),
				zap.Strings("missing", st.Missing),
				zap.Strings("unparsed", st.Unparsed))
		case pipeline.KindScore:
			for _, name := range st.ScoreOrder {
				fields = append(fields, zap.Float64(name, st.Scores[name].Probability))
			}
		case pipeline.KindCombine:
			if st.Ensemble != nil {
				fields = append(fields,
					zap.Float64("ensemble", st.Ensemble.Probability),
					zap.String("policy", st.EnsemblePolicy),
					zap.Strings("members", st.EnsembleMembers))
			}
		case pipeline.KindTopK:
			if len(st.Recommendations) > 0 {
				fields = append(fields,
					zap.String("top", st.Recommendations[0].Category.Label),
					zap.Float64("probability", st.Recommendations[0].Probability))
			}
		}
		ce.Write(fields...)
	}
}

func (o *LogObserver) OnFinish(_ context.Context, st *pipeline.State, elapsed time.Duration, err error) {
	if err != nil {
		o.Logger.Warn("task failed",
			zap.String("task", st.Task),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	if len(st.Unparsed) > 0 {
		o.Logger.Info("task done with unparsed fields",
			zap.String("task", st.Task),
			zap.Duration("elapsed", elapsed),
			zap.Strings("unparsed", st.Unparsed))
		return
	}
	o.Logger.Debug("task done", zap.String("task", st.Task), zap.Duration("elapsed", elapsed))
}

func (o *LogObserver) OnCacheHit(_ context.Context, st *pipeline.State, err error) {
	o.Logger.Debug("task served from cache",
		zap.String("task", st.Task),
		zap.Bool("failed", err != nil))
}

// MetricsObserver 把每个任务的耗时、结果以及集成策略导出为 Prometheus 指标。
//
// task_total、ensemble_policy_total、risk_decision_total 按请求计数（包括命中结果缓存的请求）；
// task_duration_seconds、stage_total 只统计实际执行的 Pipeline。
type MetricsObserver struct {
	tasks     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	stages    *prometheus.CounterVec
	policies  *prometheus.CounterVec
	decisions *prometheus.CounterVec
}

// NewMetricsObserver 创建指标并注册到 reg
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	o := &MetricsObserver{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardiokit",
			Name:      "task_total",
			Help:      "Answered inference sub-tasks by task and status, cache hits included.",
		}, []string{"task", "status", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cardiokit",
			Name:      "task_duration_seconds",
			Help:      "Executed inference sub-task latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"task"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardiokit",
			Name:      "stage_total",
			Help:      "Successfully executed pipeline stages.",
		}, []string{"task", "stage"}),
		policies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardiokit",
			Name:      "ensemble_policy_total",
			Help:      "Ensemble combinations by policy (weighted or fallback_mean).",
		}, []string{"policy"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardiokit",
			Name:      "risk_decision_total",
			Help:      "Binary risk decisions by model.",
		}, []string{"model", "decision"}),
	}
	for _, c := range []prometheus.Collector{o.tasks, o.duration, o.stages, o.policies, o.decisions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *MetricsObserver) AfterStage(_ context.Context, st *pipeline.State, stage pipeline.Stage) {
	o.stages.WithLabelValues(st.Task, stage.Name()).Inc()
	if stage.Kind() == pipeline.KindCombine {
		o.observeDecisions(st)
	}
}

func (o *MetricsObserver) OnFinish(_ context.Context, st *pipeline.State, elapsed time.Duration, err error) {
	o.duration.WithLabelValues(st.Task).Observe(elapsed.Seconds())
	o.observeOutcome(st, err)
}

func (o *MetricsObserver) OnCacheHit(_ context.Context, st *pipeline.State, err error) {
	if err == nil {
		o.observeDecisions(st)
	}
	o.observeOutcome(st, err)
}

func (o *MetricsObserver) observeDecisions(st *pipeline.State) {
	if st.Ensemble == nil {
		return
	}
	o.policies.WithLabelValues(st.EnsemblePolicy).Inc()
	o.decisions.WithLabelValues("ensemble", decisionLabel(st.Ensemble.Decision)).Inc()
	for _, name := range st.ScoreOrder {
		o.decisions.WithLabelValues(name, decisionLabel(st.Scores[name].Decision)).Inc()
	}
}

func (o *MetricsObserver) observeOutcome(st *pipeline.State, err error) {
	if err != nil {
		code := "INTERNAL"
		if se, ok := pipeline.AsStageError(err); ok {
			code = se.Code()
		}
		o.tasks.WithLabelValues(st.Task, "error", code).Inc()
		return
	}
	o.tasks.WithLabelValues(st.Task, "ok", "").Inc()
}

func decisionLabel(d int) string {
	if d == 1 {
		return "1"
	}
	return "0"
}

var (
	_ pipeline.Hook      = (*LogObserver)(nil)
	_ pipeline.Hook      = (*MetricsObserver)(nil)
	_ pipeline.CacheHook = (*LogObserver)(nil)
	_ pipeline.CacheHook = (*MetricsObserver)(nil)
)
