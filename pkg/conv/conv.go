// Package conv 提供类型转换、map/slice 转换等泛型工具，用于简化各模块中的重复逻辑。
package conv

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ToFloat64 将 any 转为 float64。
// 支持 float64、float32、int、int64、int32、json.Number；bool 视为 1.0/0.0。
// 字符串不在此处解析，使用 TryParseNumeric。
func ToFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case bool:
		if val {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// NumericKind 是 TryParseNumeric 的结果分类。
type NumericKind int

const (
	// NumericMissing 值不存在（nil）
	NumericMissing NumericKind = iota
	// NumericParsed 成功解析为有限浮点数
	NumericParsed
	// NumericOriginal 无法解析，保留原始值
	NumericOriginal
)

func (k NumericKind) String() string {
	switch k {
	case NumericMissing:
		return "missing"
	case NumericParsed:
		return "parsed"
	case NumericOriginal:
		return "original"
	default:
		return "unknown"
	}
}

// Numeric 是“解析后的值 | 原始值 | 缺失”三选一的结果。
// 仅当 Kind == NumericParsed 时 Value 有意义；Kind == NumericOriginal 时 Raw 保存原值。
type Numeric struct {
	Kind  NumericKind
	Value float64
	Raw   any
}

// Ok 表示是否解析成功
func (n Numeric) Ok() bool { return n.Kind == NumericParsed }

// TryParseNumeric 尽力把原始输入解析为浮点数：
//   - 数字类型、json.Number、bool 直接转换
//   - 字符串去掉首尾空白后按十进制解析（"52"、" 1.5 "、"1e3"），规则与 Python float() 一致：
//     数字之间允许单个下划线（"1_000"），不接受十六进制（"0x1p-2"）
//   - NaN / ±Inf 视为无法解析
//   - nil 视为缺失
func TryParseNumeric(v any) Numeric {
	if v == nil {
		return Numeric{Kind: NumericMissing}
	}
	if s, ok := v.(string); ok {
		f, err := parseDecimal(s)
		if err != nil || !isFinite(f) {
			return Numeric{Kind: NumericOriginal, Raw: v}
		}
		return Numeric{Kind: NumericParsed, Value: f}
	}
	f, ok := ToFloat64(v)
	if !ok || !isFinite(f) {
		return Numeric{Kind: NumericOriginal, Raw: v}
	}
	return Numeric{Kind: NumericParsed, Value: f}
}

// parseDecimal 按十进制解析字符串
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	body := strings.TrimLeft(s, "+-")
	if len(body) > 1 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		return 0, strconv.ErrSyntax
	}
	if strings.Contains(s, "_") {
		for i := 0; i < len(s); i++ {
			if s[i] != '_' {
				continue
			}
			if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
				return 0, strconv.ErrSyntax
			}
		}
		s = strings.ReplaceAll(s, "_", "")
	}
	return strconv.ParseFloat(s, 64)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SortedKeys 返回 map 的 key（升序），用于确定性遍历。
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
