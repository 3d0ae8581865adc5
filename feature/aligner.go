package feature

import (
	"context"
	"fmt"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/conv"
	"github.com/rushteam/cardiokit/pkg/utils"
)

// DefaultValue 是缺失特征的填充值
const DefaultValue = 0.0

// NonNumericPolicy 决定对齐时遇到无法解析为数字的值如何处理。
type NonNumericPolicy int

const (
	// NonNumericZero 填 DefaultValue，并在 AlignReport.Unparsed 中记录特征名（默认）
	NonNumericZero NonNumericPolicy = iota
	// NonNumericReject 返回 INVALID_INPUT 错误
	NonNumericReject
)

// ParseNonNumericPolicy 解析配置中的策略名："zero" / "reject"
func ParseNonNumericPolicy(s string) (NonNumericPolicy, error) {
	switch s {
	case "", "zero":
		return NonNumericZero, nil
	case "reject":
		return NonNumericReject, nil
	default:
		return NonNumericZero, fmt.Errorf("unknown non-numeric policy %q", s)
	}
}

// AlignReport 记录一次对齐中的缺失与解析失败的特征名（按 schema 顺序）。
type AlignReport struct {
	Missing  []string
	Unparsed []string
}

// Align 按 schema 顺序把 record 映射为定长向量：
//   - 缺失字段填 DefaultValue，不报错
//   - 值经 conv.TryParseNumeric 解析；解析失败按 policy 处理
//   - 只有 schema 为空或格式错误时返回 SCHEMA_ERROR
//
// 输出长度总是 len(schema)。
func Align(record core.InputRecord, schema core.FeatureSchema, policy NonNumericPolicy) (core.FeatureVector, AlignReport, error) {
	var report AlignReport
	if err := schema.Validate(); err != nil {
		return nil, report, err
	}

	vec := make(core.FeatureVector, len(schema))
	for i, name := range schema {
		raw, ok := record[name]
		if !ok {
			vec[i] = DefaultValue
			report.Missing = append(report.Missing, name)
			continue
		}
		n := conv.TryParseNumeric(raw)
		switch n.Kind {
		case conv.NumericParsed:
			vec[i] = n.Value
		case conv.NumericMissing:
			vec[i] = DefaultValue
			report.Missing = append(report.Missing, name)
		default:
			if policy == NonNumericReject {
				return nil, report, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput,
					fmt.Sprintf("feature %q has non-numeric value %v", name, n.Raw))
			}
			vec[i] = DefaultValue
			report.Unparsed = append(report.Unparsed, name)
		}
	}
	return vec, report, nil
}

// TranslateRecord 按 mapping（源字段名 -> 目标字段名）翻译 record 的 key。
// 不在 mapping 中的字段被丢弃，不透传。
func TranslateRecord(record core.InputRecord, mapping map[string]string) core.InputRecord {
	out := make(core.InputRecord, len(mapping))
	for _, src := range conv.SortedKeys(mapping) {
		if v, ok := record[src]; ok {
			out[mapping[src]] = v
		}
	}
	return out
}

// AlignNode 是对齐阶段。Mapping 非空时先做字段名翻译（饮食任务）。
type AlignNode struct {
	Schema  core.FeatureSchema
	Mapping map[string]string
	Policy  NonNumericPolicy
}

func (n *AlignNode) Name() string        { return "feature.align" }
func (n *AlignNode) Kind() pipeline.Kind { return pipeline.KindAlign }

func (n *AlignNode) Process(_ context.Context, st *pipeline.State) error {
	record := st.Record
	if n.Mapping != nil {
		record = TranslateRecord(record, n.Mapping)
	}
	vec, report, err := Align(record, n.Schema, n.Policy)
	if err != nil {
		return err
	}
	st.Schema = n.Schema
	st.Vector = vec
	st.Aligned = vec
	st.Missing = report.Missing
	st.Unparsed = report.Unparsed
	for _, name := range report.Unparsed {
		st.PutLabel("unparsed_fields", utils.Label{Value: name, Source: "align"})
	}
	return nil
}
