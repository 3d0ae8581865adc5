package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/cardiokit/ensemble"
	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/inference"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/dsl"
	"github.com/rushteam/cardiokit/pkg/logx"
	"github.com/rushteam/cardiokit/store"
)

// EnvConfigPath 是配置文件路径的环境变量
const EnvConfigPath = "CARDIOKIT_CONFIG"

// Config 是 cardiokit 的配置结构（支持 YAML/JSON）。
type Config struct {
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Ensemble   EnsembleConfig   `yaml:"ensemble"`
	Features   FeaturesConfig   `yaml:"features"`
	Diet       DietConfig       `yaml:"diet"`
	Validation ValidationConfig `yaml:"validation"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        logx.Config      `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ArtifactsConfig 训练产物的来源
type ArtifactsConfig struct {
	// Backend: file / redis
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// EnsembleConfig 集成配置。Models 非空时直接使用，不再从准确率报告推导。
type EnsembleConfig struct {
	// Weighting: accuracy / equal
	Weighting string             `yaml:"weighting"`
	TopN      int                `yaml:"top_n"`
	Models    []string           `yaml:"models"`
	Weights   map[string]float64 `yaml:"weights"`
}

type FeaturesConfig struct {
	// NonNumeric: zero / reject
	NonNumeric string `yaml:"non_numeric"`
}

type DietConfig struct {
	TopK int `yaml:"top_k"`
}

// ValidationConfig 输入范围校验；Rules 为空且 Defaults 为 true 时使用内置的表单范围。
type ValidationConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Defaults bool       `yaml:"defaults"`
	Rules    []dsl.Rule `yaml:"rules"`
}

type CacheConfig struct {
	// Size 结果缓存条目数，0 表示不缓存
	Size int `yaml:"size"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxBodyBytes 请求体上限
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Artifacts: ArtifactsConfig{
			Backend: string(store.BackendFile),
			Dir:     "./artifacts",
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "cardiokit:"},
		},
		Ensemble:   EnsembleConfig{Weighting: string(ensemble.WeightingAccuracy), TopN: ensemble.DefaultTopN},
		Features:   FeaturesConfig{NonNumeric: "zero"},
		Diet:       DietConfig{TopK: 3},
		Validation: ValidationConfig{Enabled: true, Defaults: true},
		Cache:      CacheConfig{Size: 1024},
		Log:        logx.Config{Level: "info", Format: "json"},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load 从文件加载配置，未设置的字段保留默认值。
// YAML 是 JSON 的超集，所以 .json 文件也走同一个解析器。
// path 为空时使用环境变量 CARDIOKIT_CONFIG；两者都为空时返回默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch store.Backend(c.Artifacts.Backend) {
	case store.BackendFile:
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir is required for file backend")
		}
	case store.BackendRedis:
		if c.Artifacts.Redis.Addr == "" {
			return fmt.Errorf("artifacts.redis.addr is required for redis backend")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not supported", c.Artifacts.Backend)
	}
	if _, err := ensemble.ParseWeighting(c.Ensemble.Weighting); err != nil {
		return fmt.Errorf("ensemble.weighting: %w", err)
	}
	if c.Ensemble.TopN < 0 {
		return fmt.Errorf("ensemble.top_n must not be negative")
	}
	if len(c.Ensemble.Models) > 0 {
		if err := c.EnsembleSpec().Validate(); err != nil {
			return err
		}
	}
	if _, err := feature.ParseNonNumericPolicy(c.Features.NonNumeric); err != nil {
		return fmt.Errorf("features.non_numeric: %w", err)
	}
	if c.Diet.TopK < 0 {
		return fmt.Errorf("diet.top_k must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	return nil
}

// EnsembleSpec 返回配置中显式指定的集成 Spec，没有指定时返回 nil
func (c *Config) EnsembleSpec() *ensemble.Spec {
	if len(c.Ensemble.Models) == 0 {
		return nil
	}
	return &ensemble.Spec{Models: c.Ensemble.Models, Weights: c.Ensemble.Weights}
}

// StoreOptions 返回产物存储参数
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:   store.Backend(c.Artifacts.Backend),
		Dir:       c.Artifacts.Dir,
		RedisAddr: c.Artifacts.Redis.Addr,
		RedisDB:   c.Artifacts.Redis.DB,
		KeyPrefix: c.Artifacts.Redis.KeyPrefix,
	}
}

// Rules 返回生效的校验规则
func (c *Config) Rules() []dsl.Rule {
	if !c.Validation.Enabled {
		return nil
	}
	if len(c.Validation.Rules) > 0 {
		return c.Validation.Rules
	}
	if c.Validation.Defaults {
		return DefaultRules()
	}
	return nil
}

// InferenceOptions 把配置转换为 inference.Options（会编译校验规则）
func (c *Config) InferenceOptions(hooks ...pipeline.Hook) (inference.Options, error) {
	weighting, err := ensemble.ParseWeighting(c.Ensemble.Weighting)
	if err != nil {
		return inference.Options{}, err
	}
	policy, err := feature.ParseNonNumericPolicy(c.Features.NonNumeric)
	if err != nil {
		return inference.Options{}, err
	}
	opts := inference.Options{
		Weighting:  weighting,
		TopN:       c.Ensemble.TopN,
		Spec:       c.EnsembleSpec(),
		TopK:       c.Diet.TopK,
		NonNumeric: policy,
		Hooks:      hooks,
	}
	if rules := c.Rules(); len(rules) > 0 {
		rs, err := dsl.Compile(rules)
		if err != nil {
			return inference.Options{}, fmt.Errorf("validation rules: %w", err)
		}
		opts.Rules = rs
	}
	return opts, nil
}
