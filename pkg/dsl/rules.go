package dsl

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/cardiokit/pkg/conv"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// getCELEnv 获取或创建 CEL 环境。
// 规则表达式可用的变量：
//   - value: 字段解析后的数值（double）
//   - field: 字段名（string）
//   - record: 整条输入记录（map）。可解析为数字的值（json.Number、数字字符串）已转为 double，其余保持原值
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("value", cel.DoubleType),
			cel.Variable("field", cel.StringType),
			cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// Rule 是一条字段校验规则，表达式必须返回 bool，true 表示通过。
//
// 示例：
//   - `value >= 18.0 && value <= 100.0`
//   - `value == 0.0 || value == 1.0`
//   - `value < record["Systolic"]`（record 中不存在该字段时运行出错，记为不通过）
type Rule struct {
	Field   string `yaml:"field" json:"field"`
	Expr    string `yaml:"expr" json:"expr"`
	Message string `yaml:"message" json:"message"`
}

// Violation 是一次规则不通过的记录
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type compiledRule struct {
	Rule
	prg cel.Program
}

// RuleSet 是编译好的规则集合，编译一次后可被多个请求并发使用。
type RuleSet struct {
	rules []compiledRule
}

// Compile 编译规则。任何一条表达式编译失败或返回类型不是 bool 都会报错。
func Compile(rules []Rule) (*RuleSet, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Field == "" {
			return nil, fmt.Errorf("rule %d: field is required", i)
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %d (%s): compile error: %v", i, r.Field, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %d (%s): expression must return bool, got %v", i, r.Field, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): program error: %v", i, r.Field, err)
		}
		rs.rules = append(rs.rules, compiledRule{Rule: r, prg: prg})
	}
	return rs, nil
}

// Len 返回规则数量
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Check 对记录执行所有规则。
// 字段缺失或无法解析为数字时跳过该字段的规则（缺失/非数字由对齐阶段报告）。
// 表达式运行出错也算作不通过。结果按字段名排序。
func (rs *RuleSet) Check(record map[string]any) []Violation {
	if rs == nil || record == nil {
		return nil
	}
	normalized := normalizeRecord(record)
	var out []Violation
	for _, r := range rs.rules {
		n := conv.TryParseNumeric(record[r.Field])
		if !n.Ok() {
			continue
		}
		val, _, err := r.prg.Eval(map[string]any{
			"value":  n.Value,
			"field":  r.Field,
			"record": normalized,
		})
		if err != nil {
			out = append(out, Violation{Field: r.Field, Message: fmt.Sprintf("rule error: %v", err)})
			continue
		}
		if pass, ok := val.Value().(bool); !ok || !pass {
			msg := r.Message
			if msg == "" {
				msg = fmt.Sprintf("%s=%v violates %s", r.Field, n.Value, r.Expr)
			}
			out = append(out, Violation{Field: r.Field, Message: msg})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// normalizeRecord 把可解析为数字的值转为 float64。
// HTTP / CLI 解码使用 UseNumber，原始值是 json.Number，CEL 无法直接比较。
func normalizeRecord(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if n := conv.TryParseNumeric(v); n.Ok() {
			out[k] = n.Value
			continue
		}
		out[k] = v
	}
	return out
}

// RangeRule 生成 [min, max] 闭区间规则
func RangeRule(field string, min, max float64) Rule {
	return Rule{
		Field:   field,
		Expr:    fmt.Sprintf("value >= %s && value <= %s", celDouble(min), celDouble(max)),
		Message: fmt.Sprintf("%s should be between %v and %v", field, min, max),
	}
}

// OneOfRule 生成取值只能是给定选项之一的规则
func OneOfRule(field string, options ...float64) Rule {
	expr := "false"
	for _, o := range options {
		expr += " || value == " + celDouble(o)
	}
	return Rule{
		Field:   field,
		Expr:    expr,
		Message: fmt.Sprintf("%s should be one of %v", field, options),
	}
}

// celDouble 保证数字字面量在 CEL 中是 double（CEL 不做 int/double 隐式转换）
func celDouble(v float64) string {
	s := fmt.Sprintf("%v", v)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s
		}
	}
	return s + ".0"
}
