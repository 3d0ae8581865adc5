package utils

// Label 是推理结果中的解释信息：可解释、可追踪、可透传。
// Value 与 Source 的语义由各阶段自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // align / combine / validation ...
}

// Labels 是 key -> Label 的集合，同名 key 按 MergeLabel 累积。
type Labels map[string]Label

// Put 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (ls Labels) Put(key string, lbl Label) {
	if old, ok := ls[key]; ok {
		ls[key] = MergeLabel(old, lbl)
		return
	}
	ls[key] = lbl
}

// Merge 把 other 中的所有 Label 合并进来
func (ls Labels) Merge(other Labels) {
	for k, v := range other {
		ls.Put(k, v)
	}
}

// MergeLabel 用于合并同名 Label，遵循“保留历史、可追踪”的默认策略。
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积（相同来源不重复）
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "", incoming.Source == existing.Source:
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
