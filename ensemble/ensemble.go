package ensemble

import (
	"math"
	"sort"

	"github.com/rushteam/cardiokit/core"
)

// Policy 说明集成结果是怎样得到的
type Policy string

const (
	// PolicyWeighted 按 Spec 中模型的权重加权平均
	PolicyWeighted Policy = "weighted"
	// PolicyFallbackMean 权重之和为 0 或无效时，对所有可用概率取算术平均
	PolicyFallbackMean Policy = "fallback_mean"
)

// Spec 描述哪些模型参与集成以及各自的权重。
// 由训练期的准确率报告构建一次（见 SpecFromReport），请求之间共享且不可变。
//
// Weights 为 nil 表示等权；否则没有出现在 Weights 中的模型权重为 0。
type Spec struct {
	Models  []string           `json:"models" yaml:"models"`
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights"`
}

// Validate 校验 Spec：模型名不能为空或重复，权重必须是非负有限数。
func (s Spec) Validate() error {
	seen := make(map[string]struct{}, len(s.Models))
	for _, name := range s.Models {
		if name == "" {
			return core.NewDomainError(core.ModuleEnsemble, core.ErrorCodeInvalidInput, "ensemble: empty model name")
		}
		if _, ok := seen[name]; ok {
			return core.NewDomainError(core.ModuleEnsemble, core.ErrorCodeInvalidInput, "ensemble: duplicate model "+name)
		}
		seen[name] = struct{}{}
	}
	for name, w := range s.Weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return core.NewDomainError(core.ModuleEnsemble, core.ErrorCodeInvalidInput,
				"ensemble: weight of "+name+" must be a non-negative finite number")
		}
	}
	return nil
}

// Weight 返回模型的权重
func (s Spec) Weight(name string) float64 {
	if s.Weights == nil {
		return 1
	}
	return s.Weights[name]
}

// Combine 把多个模型的阳性概率集成为一个决策：
//
//	p = Σ(w_i * p_i) / Σ(w_i)，i 取 spec.Models 中有分数的模型
//
// 权重之和为 0 或无效（没有可用模型、NaN）时退化为所有可用概率的算术平均，
// 注意是所有分数而不只是 spec.Models 中的模型。
// 相同的 scores 与 spec 总是得到相同的结果。
func Combine(scores map[string]float64, spec Spec) (core.ScoreResult, Policy, error) {
	if len(scores) == 0 {
		return core.ScoreResult{}, "", core.NewDomainError(core.ModuleEnsemble, core.ErrorCodeInference, "ensemble: no scores to combine")
	}
	if err := spec.Validate(); err != nil {
		return core.ScoreResult{}, "", err
	}

	var num, den float64
	for _, name := range spec.Models {
		p, ok := scores[name]
		if !ok {
			continue
		}
		w := spec.Weight(name)
		num += w * p
		den += w
	}
	if den > 0 && !math.IsNaN(den) && !math.IsInf(den, 0) {
		return core.NewScoreResult(num / den), PolicyWeighted, nil
	}

	return core.NewScoreResult(mean(scores)), PolicyFallbackMean, nil
}

// Members 返回实际参与计算的模型（按计算顺序）
func Members(scores map[string]float64, spec Spec, policy Policy) []string {
	if policy == PolicyFallbackMean {
		return sortedNames(scores)
	}
	out := make([]string, 0, len(spec.Models))
	for _, name := range spec.Models {
		if _, ok := scores[name]; ok && spec.Weight(name) > 0 {
			out = append(out, name)
		}
	}
	return out
}

// mean 按名称顺序累加，保证浮点结果与 map 遍历顺序无关
func mean(scores map[string]float64) float64 {
	sum := 0.0
	for _, name := range sortedNames(scores) {
		sum += scores[name]
	}
	return sum / float64(len(scores))
}

func sortedNames(scores map[string]float64) []string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
