package feature

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/cardiokit/pipeline"
)

// FeatureStats 单个任务中某个特征的使用情况与原始值（标准化前）统计。
type FeatureStats struct {
	Task          string    `json:"task"`
	Feature       string    `json:"feature"`
	UsageCount    int64     `json:"usage_count"`
	MissingCount  int64     `json:"missing_count"`
	UnparsedCount int64     `json:"unparsed_count"`
	Mean          float64   `json:"mean"`
	Std           float64   `json:"std"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	P50           float64   `json:"p50"`
	P95           float64   `json:"p95"`
	P99           float64   `json:"p99"`
	LastSeen      time.Time `json:"last_seen"`
}

type monitorKey struct {
	task    string
	feature string
}

type monitorEntry struct {
	stats  FeatureStats
	values []float64
}

// Monitor 是内存特征监控，作为 pipeline.Hook 挂在对齐阶段之后，
// 记录每个特征的使用次数、缺失次数、无法解析次数，以及最近 maxSamples 个原始值。
// 统计量在 Stats 调用时按当前样本窗口计算。
type Monitor struct {
	mu         sync.Mutex
	entries    map[monitorKey]*monitorEntry
	maxSamples int
	now        func() time.Time
}

// NewMonitor 创建特征监控，maxSamples <= 0 时取 1000
func NewMonitor(maxSamples int) *Monitor {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &Monitor{
		entries:    make(map[monitorKey]*monitorEntry),
		maxSamples: maxSamples,
		now:        time.Now,
	}
}

func (m *Monitor) AfterStage(_ context.Context, st *pipeline.State, stage pipeline.Stage) {
	if stage.Kind() == pipeline.KindAlign {
		m.observe(st)
	}
}

func (m *Monitor) OnFinish(context.Context, *pipeline.State, time.Duration, error) {}

// OnCacheHit 把缓存命中的请求按一次普通请求计入，使用缓存时保存的对齐结果
func (m *Monitor) OnCacheHit(_ context.Context, st *pipeline.State, _ error) {
	m.observe(st)
}

func (m *Monitor) observe(st *pipeline.State) {
	if len(st.Schema) == 0 || len(st.Schema) != len(st.Aligned) {
		return
	}
	missing := toSet(st.Missing)
	unparsed := toSet(st.Unparsed)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, name := range st.Schema {
		e := m.entry(st.Task, name)
		e.stats.UsageCount++
		e.stats.LastSeen = now
		switch {
		case missing[name]:
			e.stats.MissingCount++
		case unparsed[name]:
			e.stats.UnparsedCount++
		default:
			// 只有真实输入的值进入样本窗口，填充值不计入
			if len(e.values) >= m.maxSamples {
				e.values = e.values[1:]
			}
			e.values = append(e.values, st.Aligned[i])
		}
	}
}

func (m *Monitor) entry(task, feature string) *monitorEntry {
	k := monitorKey{task: task, feature: feature}
	e, ok := m.entries[k]
	if !ok {
		e = &monitorEntry{stats: FeatureStats{Task: task, Feature: feature}}
		m.entries[k] = e
	}
	return e
}

// Stats 返回所有特征的统计快照，按 task、feature 排序
func (m *Monitor) Stats() []FeatureStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]FeatureStats, 0, len(m.entries))
	for _, e := range m.entries {
		s := e.stats
		if len(e.values) > 0 {
			computed := ComputeStatistics(e.values)
			s.Mean = computed.Mean
			s.Std = computed.Std
			s.Min = computed.Min
			s.Max = computed.Max
			s.P50 = computed.Median
			s.P95 = computed.P95
			s.P99 = computed.P99
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task != out[j].Task {
			return out[i].Task < out[j].Task
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// FeatureStatistics 特征统计信息
type FeatureStatistics struct {
	Mean   float64
	Std    float64
	Min    float64
	Max    float64
	Median float64
	P25    float64
	P75    float64
	P95    float64
	P99    float64
}

// ComputeStatistics 计算特征统计信息
func ComputeStatistics(values []float64) *FeatureStatistics {
	if len(values) == 0 {
		return &FeatureStatistics{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	stats := &FeatureStatistics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	stats.Mean = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - stats.Mean) * (v - stats.Mean)
	}
	stats.Std = math.Sqrt(variance / float64(len(values)))

	stats.Median = computePercentile(sorted, 0.5)
	stats.P25 = computePercentile(sorted, 0.25)
	stats.P75 = computePercentile(sorted, 0.75)
	stats.P95 = computePercentile(sorted, 0.95)
	stats.P99 = computePercentile(sorted, 0.99)

	return stats
}

// computePercentile 线性插值分位数，sorted 必须已排序
func computePercentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

var (
	_ pipeline.Hook      = (*Monitor)(nil)
	_ pipeline.CacheHook = (*Monitor)(nil)
)
