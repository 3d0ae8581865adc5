package inference

import (
	"context"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rushteam/cardiokit/core"
)

// CacheObserver 由被缓存的 Predictor 可选实现：结果来自缓存时调用，
// 让观测（指标、特征监控）仍然按请求计数。
type CacheObserver interface {
	ObserveCached(ctx context.Context, res *Result)
}

// CachedPredictor 用 LRU 缓存成功的预测结果。
// 预测是确定性的（相同记录 + 不变的产物 => 相同结果），所以可以按记录内容缓存。
// 缓存的 *Result 被多个调用方共享，调用方不得修改。
type CachedPredictor struct {
	next     Predictor
	observer CacheObserver
	cache    *lru.Cache[string, *Result]

	hits   prometheus.Counter
	misses prometheus.Counter
}

// CacheOption 配置 CachedPredictor
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	reg prometheus.Registerer
}

// WithCacheMetrics 把命中 / 未命中计数注册到 reg
func WithCacheMetrics(reg prometheus.Registerer) CacheOption {
	return func(o *cacheOptions) { o.reg = reg }
}

// NewCachedPredictor 创建缓存，size <= 0 时直接返回 next
func NewCachedPredictor(next Predictor, size int, opts ...CacheOption) (Predictor, error) {
	if size <= 0 {
		return next, nil
	}
	var o cacheOptions
	for _, opt := range opts {
		opt(&o)
	}
	c, err := lru.New[string, *Result](size)
	if err != nil {
		return nil, err
	}
	p := &CachedPredictor{
		next:  next,
		cache: c,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardiokit",
			Name:      "cache_hits_total",
			Help:      "Predictions served from the result cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardiokit",
			Name:      "cache_misses_total",
			Help:      "Predictions that ran the pipelines.",
		}),
	}
	if ob, ok := next.(CacheObserver); ok {
		p.observer = ob
	}
	if o.reg != nil {
		for _, col := range []prometheus.Collector{p.hits, p.misses} {
			if err := o.reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *CachedPredictor) Predict(ctx context.Context, record core.InputRecord) (*Result, error) {
	key, err := cacheKey(record)
	if err != nil {
		// 无法序列化的记录不缓存
		return p.next.Predict(ctx, record)
	}
	if res, ok := p.cache.Get(key); ok {
		p.hits.Inc()
		if p.observer != nil {
			p.observer.ObserveCached(ctx, res)
		}
		return res, nil
	}
	p.misses.Inc()
	res, err := p.next.Predict(ctx, record)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, res)
	return res, nil
}

// Len 返回缓存条目数
func (p *CachedPredictor) Len() int { return p.cache.Len() }

// cacheKey 使用 JSON 编码（map key 有序）作为记录的规范形式
func cacheKey(record core.InputRecord) (string, error) {
	if record == nil {
		return "", core.NewDomainError("inference", core.ErrorCodeInvalidInput, "record is required")
	}
	b, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
