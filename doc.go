// Package cardiokit 是心脏病风险预测与饮食方案推荐的推理工具包。
//
// 设计要点：
// - Pipeline-first: 每个子任务都是 Stage 链（Align → Scale → Score → Combine / TopK）
// - Artifacts-first: 特征顺序、标准化参数、模型、评估报告都来自训练产物，启动时加载一次
// - Labels-first: 对齐 / 集成 / 校验的决策写入 labels，随结果一起返回，便于解释与观测
package cardiokit

import (
	"github.com/rushteam/cardiokit/inference"
	"github.com/rushteam/cardiokit/pipeline"
)

// 轻量 facade：便于直接 import "cardiokit" 使用核心抽象。
type (
	Pipeline  = pipeline.Pipeline
	Stage     = pipeline.Stage
	Kind      = pipeline.Kind
	Predictor = inference.Predictor
	Result    = inference.Result
)

const (
	KindAlign        = pipeline.KindAlign
	KindScale        = pipeline.KindScale
	KindScore        = pipeline.KindScore
	KindCombine      = pipeline.KindCombine
	KindDistribution = pipeline.KindDistribution
	KindTopK         = pipeline.KindTopK
)
