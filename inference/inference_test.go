package inference

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rushteam/cardiokit/artifact"
	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/ensemble"
	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/dsl"
	"github.com/rushteam/cardiokit/store"
)

const bundleDir = "../artifact/testdata/bundle"

func testBundle(t *testing.T) *artifact.Bundle {
	t.Helper()
	s, err := store.NewFileStore(bundleDir)
	require.NoError(t, err)
	b, err := artifact.LoadBundle(context.Background(), s)
	require.NoError(t, err)
	return b
}

func testContext(t *testing.T, opts Options) *Context {
	t.Helper()
	c, err := NewContext(testBundle(t), opts)
	require.NoError(t, err)
	return c
}

func fullRecord() core.InputRecord {
	return core.InputRecord{
		"Age":         "61",
		"Cholesterol": "286",
		"Heart Rate":  "88",
		"BMI":         "31.5",
	}
}

type failingDistribution struct{}

func (failingDistribution) Name() string     { return "diet" }
func (failingDistribution) NumFeatures() int { return 3 }
func (failingDistribution) NumClasses() int  { return 4 }
func (failingDistribution) PredictDistribution([]float64) ([]float64, error) {
	return nil, errors.New("model unavailable")
}

func TestNewContext(t *testing.T) {
	c := testContext(t, Options{})
	assert.Equal(t, []string{"xgboost", "random_forest"}, c.Spec.Models)
	assert.Equal(t, 0.874, c.Spec.Weights["xgboost"])
	assert.Len(t, c.Risk.Stages, 4)
	assert.Len(t, c.Diet.Stages, 4)

	c = testContext(t, Options{Weighting: ensemble.WeightingEqual})
	assert.Nil(t, c.Spec.Weights)

	c = testContext(t, Options{Spec: &ensemble.Spec{Models: []string{"logistic_regression"}}})
	assert.Equal(t, []string{"logistic_regression"}, c.Spec.Models)
}

func TestNewContext_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *artifact.Bundle)
		check  func(error) bool
	}{
		{name: "empty risk schema", mutate: func(b *artifact.Bundle) { b.RiskSchema = nil }, check: core.IsSchemaError},
		{name: "duplicate diet column", mutate: func(b *artifact.Bundle) { b.DietSchema = core.FeatureSchema{"age", "age", "bmi"} }, check: core.IsSchemaError},
		{name: "scaler width", mutate: func(b *artifact.Bundle) { b.RiskSchema = append(b.RiskSchema, "Smoking") }, check: core.IsDimensionMismatch},
		{name: "diet model width", mutate: func(b *artifact.Bundle) {
			b.DietSchema = core.FeatureSchema{"age", "bmi"}
			b.DietScaler, _ = feature.NewStandardScaler([]float64{0, 0}, []float64{1, 1})
		}, check: core.IsDimensionMismatch},
		{name: "no scaler", mutate: func(b *artifact.Bundle) { b.DietScaler = nil }, check: core.IsMissingArtifact},
		{name: "no diet model", mutate: func(b *artifact.Bundle) { b.DietModel = nil }, check: core.IsMissingArtifact},
		{name: "negative weight", mutate: func(b *artifact.Bundle) {
			b.Report.Models["xgboost"] = ensemble.Metrics{Accuracy: -1}
		}, check: core.IsInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBundle(t)
			tt.mutate(b)
			_, err := NewContext(b, Options{})
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	_, err := NewContext(nil, Options{})
	assert.True(t, core.IsMissingArtifact(err))
}

func TestPredict_EndToEnd(t *testing.T) {
	o := NewOrchestrator(testContext(t, Options{}))
	res, err := o.Predict(context.Background(), fullRecord())
	require.NoError(t, err)
	require.NoError(t, res.RiskErr)
	require.NoError(t, res.DietErr)

	require.NotNil(t, res.Risk)
	assert.Equal(t, artifact.RiskModelNames, res.Risk.Order)
	assert.Len(t, res.Risk.Models, 3)
	for name, s := range res.Risk.Models {
		assert.GreaterOrEqual(t, s.Probability, 0.0, name)
		assert.LessOrEqual(t, s.Probability, 1.0, name)
		assert.Equal(t, core.NewScoreResult(s.Probability).Decision, s.Decision, name)
	}
	assert.Equal(t, string(ensemble.PolicyWeighted), res.Risk.Policy)
	assert.Equal(t, []string{"xgboost", "random_forest"}, res.Risk.Members)

	want := (0.874*res.Risk.Models["xgboost"].Probability + 0.861*res.Risk.Models["random_forest"].Probability) / (0.874 + 0.861)
	assert.InDelta(t, want, res.Risk.Ensemble.Probability, 1e-12)

	require.NotNil(t, res.Diet)
	require.Len(t, res.Diet.Top, 3)
	sum := 0.0
	for i, rec := range res.Diet.Top {
		sum += rec.Probability
		if i > 0 {
			assert.LessOrEqual(t, rec.Probability, res.Diet.Top[i-1].Probability)
		}
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)
	assert.Equal(t, res.Diet.Top[0], res.Diet.Predicted)
}

func TestPredict_JSONShape(t *testing.T) {
	o := NewOrchestrator(testContext(t, Options{}))
	res, err := o.Predict(context.Background(), fullRecord())
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var out struct {
		HeartAttack map[string]struct {
			Probability float64 `json:"probability"`
			Prediction  int     `json:"prediction"`
		} `json:"heart_attack_predictions"`
		Diet struct {
			Predicted string  `json:"predicted_meal_plan"`
			Prob      float64 `json:"probability"`
			Top       []struct {
				MealPlan    string  `json:"meal_plan"`
				Probability float64 `json:"probability"`
			} `json:"top_recommendations"`
		} `json:"diet_recommendation"`
		Errors map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Len(t, out.HeartAttack, 4)
	assert.Contains(t, out.HeartAttack, "ensemble")
	assert.Len(t, out.Diet.Top, 3)
	assert.Equal(t, out.Diet.Top[0].MealPlan, out.Diet.Predicted)
	assert.Nil(t, out.Errors)
}

func TestPredict_Idempotent(t *testing.T) {
	o := NewOrchestrator(testContext(t, Options{}))
	first, err := o.Predict(context.Background(), fullRecord())
	require.NoError(t, err)
	a, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := o.Predict(context.Background(), fullRecord())
		require.NoError(t, err)
		b, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	}
}

func TestPredict_Concurrent(t *testing.T) {
	o := NewOrchestrator(testContext(t, Options{}))
	want, err := o.Predict(context.Background(), fullRecord())
	require.NoError(t, err)
	wantJSON, _ := json.Marshal(want)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Predict(context.Background(), fullRecord())
			if assert.NoError(t, err) {
				got, _ := json.Marshal(res)
				assert.JSONEq(t, string(wantJSON), string(got))
			}
		}()
	}
	wg.Wait()
}

func TestPredict_EmptyRecordUsesDefaults(t *testing.T) {
	o := NewOrchestrator(testContext(t, Options{}))
	res, err := o.Predict(context.Background(), core.InputRecord{})
	require.NoError(t, err)
	assert.NotNil(t, res.Risk)
	assert.NotNil(t, res.Diet)

	_, err = o.Predict(context.Background(), nil)
	assert.True(t, core.IsInvalidInput(err))
}

func TestPredict_UnparsedFields(t *testing.T) {
	o := NewOrchestrator(testContext(t, Options{}))
	rec := fullRecord()
	rec["Cholesterol"] = "high"
	res, err := o.Predict(context.Background(), rec)
	require.NoError(t, err)
	assert.Contains(t, res.Labels["unparsed_fields"].Value, "Cholesterol")

	o = NewOrchestrator(testContext(t, Options{NonNumeric: feature.NonNumericReject}))
	_, err = o.Predict(context.Background(), rec)
	require.Error(t, err, "both tasks reject the same field")
	assert.True(t, core.IsInvalidInput(err))
}

func TestPredict_DietFailureKeepsRisk(t *testing.T) {
	b := testBundle(t)
	b.DietModel = failingDistribution{}
	o := NewOrchestrator(func() *Context {
		c, err := NewContext(b, Options{})
		require.NoError(t, err)
		return c
	}())

	res, err := o.Predict(context.Background(), fullRecord())
	require.NoError(t, err)
	assert.NotNil(t, res.Risk)
	assert.Nil(t, res.Diet)
	require.Error(t, res.DietErr)

	se, ok := pipeline.AsStageError(res.DietErr)
	require.True(t, ok)
	assert.Equal(t, pipeline.TaskDiet, se.Task)
	assert.Equal(t, "rank.distribution", se.Stage)
	assert.Equal(t, core.ErrorCodeInference, se.Code())

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"rank.distribution"`)
	assert.NotContains(t, string(data), "diet_recommendation")
}

func TestPredict_SchemaErrorAbortsRequest(t *testing.T) {
	c := testContext(t, Options{})
	c.Diet.Stages[0] = &feature.AlignNode{Schema: core.FeatureSchema{}}
	res, err := NewOrchestrator(c).Predict(context.Background(), fullRecord())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, core.IsSchemaError(err))
}

type waitStage struct {
	err chan error
}

func (waitStage) Name() string        { return "wait" }
func (waitStage) Kind() pipeline.Kind { return pipeline.KindScore }
func (s waitStage) Process(ctx context.Context, _ *pipeline.State) error {
	<-ctx.Done()
	s.err <- ctx.Err()
	return ctx.Err()
}

func TestPredict_SchemaErrorCancelsOtherTask(t *testing.T) {
	c := testContext(t, Options{})
	c.Diet.Stages[0] = &feature.AlignNode{Schema: core.FeatureSchema{}}
	wait := waitStage{err: make(chan error, 1)}
	c.Risk.Stages = append([]pipeline.Stage{wait}, c.Risk.Stages...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := NewOrchestrator(c).Predict(ctx, fullRecord())
	require.Error(t, err)
	assert.True(t, core.IsSchemaError(err))
	assert.ErrorIs(t, <-wait.err, context.Canceled)
}

func TestPredict_Warnings(t *testing.T) {
	rules, err := dsl.Compile([]dsl.Rule{dsl.RangeRule("Age", 18, 100)})
	require.NoError(t, err)
	o := NewOrchestrator(testContext(t, Options{Rules: rules}))

	rec := fullRecord()
	rec["Age"] = 130
	res, err := o.Predict(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Age", res.Warnings[0].Field)
	assert.Equal(t, "Age", res.Labels["validation"].Value)
	assert.NotNil(t, res.Risk, "warnings never block a prediction")
}

func TestLoader_Once(t *testing.T) {
	var calls atomic.Int32
	s, err := store.NewFileStore(bundleDir)
	require.NoError(t, err)
	build := LoadFromStore(s, Options{})
	l := NewLoader(func(ctx context.Context) (*Context, error) {
		calls.Add(1)
		return build(ctx)
	})

	var wg sync.WaitGroup
	results := make([]*Context, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := l.Load(context.Background())
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
}

func TestLoader_MissingArtifact(t *testing.T) {
	l := NewLoader(LoadFromStore(store.NewMemoryStore(), Options{}))
	_, err := l.Load(context.Background())
	assert.True(t, core.IsMissingArtifact(err))
	_, err2 := l.Load(context.Background())
	assert.Equal(t, err, err2)
}

type countingPredictor struct {
	calls atomic.Int32
	next  Predictor
}

func (p *countingPredictor) Predict(ctx context.Context, r core.InputRecord) (*Result, error) {
	p.calls.Add(1)
	return p.next.Predict(ctx, r)
}

func TestCachedPredictor(t *testing.T) {
	counting := &countingPredictor{next: NewOrchestrator(testContext(t, Options{}))}
	p, err := NewCachedPredictor(counting, 8)
	require.NoError(t, err)

	a, err := p.Predict(context.Background(), fullRecord())
	require.NoError(t, err)
	b, err := p.Predict(context.Background(), fullRecord())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), counting.calls.Load())

	_, err = p.Predict(context.Background(), core.InputRecord{"Age": 40})
	require.NoError(t, err)
	assert.Equal(t, int32(2), counting.calls.Load())
	assert.Equal(t, 2, p.(*CachedPredictor).Len())

	_, err = p.Predict(context.Background(), nil)
	assert.Error(t, err, "errors are not cached")

	plain, err := NewCachedPredictor(counting, 0)
	require.NoError(t, err)
	assert.Same(t, counting, plain)
}

func TestCachedPredictor_HitsReachObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetricsObserver(reg)
	require.NoError(t, err)
	monitor := feature.NewMonitor(0)
	zc, logs := observer.New(zapcore.DebugLevel)

	o := NewOrchestrator(testContext(t, Options{
		Hooks: []pipeline.Hook{NewLogObserver(zap.New(zc)), metrics, monitor},
	}))
	p, err := NewCachedPredictor(o, 16, WithCacheMetrics(reg))
	require.NoError(t, err)
	cached := p.(*CachedPredictor)

	for i := 0; i < 3; i++ {
		_, err := p.Predict(context.Background(), fullRecord())
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(cached.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(cached.misses))

	// 按请求计数
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.tasks.WithLabelValues(pipeline.TaskRisk, "ok", "")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.tasks.WithLabelValues(pipeline.TaskDiet, "ok", "")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.policies.WithLabelValues(string(ensemble.PolicyWeighted))))
	// 按执行计数
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stages.WithLabelValues(pipeline.TaskDiet, "rerank.topk")))
	assert.Equal(t, 2, logs.FilterMessage("task served from cache").Len())

	var age *feature.FeatureStats
	stats := monitor.Stats()
	for i := range stats {
		if stats[i].Task == pipeline.TaskRisk && stats[i].Feature == "Age" {
			age = &stats[i]
		}
	}
	require.NotNil(t, age)
	assert.EqualValues(t, 3, age.UsageCount)
	assert.Equal(t, 61.0, age.Mean)
	assert.Equal(t, 61.0, age.P95)

	_, err = NewCachedPredictor(o, 16, WithCacheMetrics(reg))
	assert.Error(t, err, "duplicate registration")
}

func TestObservers(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetricsObserver(reg)
	require.NoError(t, err)

	o := NewOrchestrator(testContext(t, Options{
		Hooks: []pipeline.Hook{NewLogObserver(zap.New(zc)), metrics},
	}))
	_, err = o.Predict(context.Background(), fullRecord())
	require.NoError(t, err)

	assert.Equal(t, 8, logs.FilterMessage("stage done").Len())
	assert.Equal(t, 1, logs.FilterMessage("stage done").FilterField(zap.String("stage", "ensemble.combine")).Len())
	assert.Equal(t, 2, logs.FilterMessage("task done").Len())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.tasks.WithLabelValues(pipeline.TaskRisk, "ok", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.tasks.WithLabelValues(pipeline.TaskDiet, "ok", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.policies.WithLabelValues(string(ensemble.PolicyWeighted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stages.WithLabelValues(pipeline.TaskDiet, "rerank.topk")))

	_, err = NewMetricsObserver(reg)
	assert.Error(t, err, "duplicate registration")
}
