package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cardiokit/ensemble"
	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/store"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.InferenceOptions()
	require.NoError(t, err)
	assert.Equal(t, ensemble.WeightingAccuracy, opts.Weighting)
	assert.Equal(t, ensemble.DefaultTopN, opts.TopN)
	assert.Equal(t, 3, opts.TopK)
	assert.Equal(t, feature.NonNumericZero, opts.NonNumeric)
	assert.Nil(t, opts.Spec)
	require.NotNil(t, opts.Rules)
	assert.Equal(t, len(DefaultRules()), opts.Rules.Len())
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "cardiokit.yaml", `
artifacts:
  backend: redis
  redis:
    addr: 10.0.0.1:6379
    db: 2
ensemble:
  weighting: equal
  top_n: 3
features:
  non_numeric: reject
diet:
  top_k: 2
server:
  addr: ":9090"
  read_timeout: 2s
validation:
  rules:
    - field: Age
      expr: "value < 120.0"
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	// 未设置的字段保留默认值
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 1024, cfg.Cache.Size)

	so := cfg.StoreOptions()
	assert.Equal(t, store.BackendRedis, so.Backend)
	assert.Equal(t, "10.0.0.1:6379", so.RedisAddr)
	assert.Equal(t, 2, so.RedisDB)
	assert.Equal(t, "cardiokit:", so.KeyPrefix)

	opts, err := cfg.InferenceOptions()
	require.NoError(t, err)
	assert.Equal(t, ensemble.WeightingEqual, opts.Weighting)
	assert.Equal(t, 3, opts.TopN)
	assert.Equal(t, 2, opts.TopK)
	assert.Equal(t, feature.NonNumericReject, opts.NonNumeric)
	assert.Equal(t, 1, opts.Rules.Len())
}

func TestLoad_JSON(t *testing.T) {
	p := writeFile(t, "cardiokit.json", `{
  "artifacts": {"dir": "/srv/artifacts"},
  "ensemble": {"models": ["xgboost", "random_forest"], "weights": {"xgboost": 0.874, "random_forest": 0.861}},
  "validation": {"enabled": false}
}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/srv/artifacts", cfg.Artifacts.Dir)

	spec := cfg.EnsembleSpec()
	require.NotNil(t, spec)
	assert.Equal(t, []string{"xgboost", "random_forest"}, spec.Models)
	assert.InDelta(t, 0.874, spec.Weight("xgboost"), 1e-9)

	opts, err := cfg.InferenceOptions()
	require.NoError(t, err)
	assert.Nil(t, opts.Rules)
}

func TestLoad_Env(t *testing.T) {
	p := writeFile(t, "env.yaml", "cache:\n  size: 7\n")
	t.Setenv(EnvConfigPath, p)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Cache.Size)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	p := writeFile(t, "bad.yaml", "artifacts: [1, 2")
	_, err = Load(p)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Artifacts.Backend = "s3" }},
		{"empty dir", func(c *Config) { c.Artifacts.Dir = "" }},
		{"redis without addr", func(c *Config) { c.Artifacts.Backend = "redis"; c.Artifacts.Redis.Addr = "" }},
		{"unknown weighting", func(c *Config) { c.Ensemble.Weighting = "f1" }},
		{"negative top_n", func(c *Config) { c.Ensemble.TopN = -1 }},
		{"duplicate models", func(c *Config) { c.Ensemble.Models = []string{"xgboost", "xgboost"} }},
		{"negative weight", func(c *Config) {
			c.Ensemble.Models = []string{"xgboost"}
			c.Ensemble.Weights = map[string]float64{"xgboost": -1}
		}},
		{"unknown non_numeric", func(c *Config) { c.Features.NonNumeric = "drop" }},
		{"negative top_k", func(c *Config) { c.Diet.TopK = -1 }},
		{"negative cache", func(c *Config) { c.Cache.Size = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInferenceOptions_BadRule(t *testing.T) {
	cfg := Default()
	cfg.Validation.Rules = append(cfg.Validation.Rules, DefaultRules()[0])
	cfg.Validation.Rules[0].Expr = "value +"
	_, err := cfg.InferenceOptions()
	assert.Error(t, err)
}

func TestDefaultRules_Compile(t *testing.T) {
	cfg := Default()
	opts, err := cfg.InferenceOptions()
	require.NoError(t, err)

	violations := opts.Rules.Check(map[string]any{
		"Age":         "150",
		"Sex":         1,
		"Diet":        0.5,
		"Cholesterol": 90.0,
		"BMI":         "n/a",
	})
	require.Len(t, violations, 2)
	assert.Equal(t, "Age", violations[0].Field)
	assert.Equal(t, "Cholesterol", violations[1].Field)
}
