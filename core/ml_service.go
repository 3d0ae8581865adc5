package core

import "context"

// MLService 是远程模型服务的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（service）实现
//   - 模型产物类型为 "remote" 时，model 包通过此接口调用外部服务
//
// 使用场景：
//   - 饮食模型部署在 TensorFlow Serving（原始模型是 Keras）
//   - 树模型部署在自定义 HTTP 推理服务
//
// 实现：
//   - service.TFServingClient 实现此接口
//   - service.HTTPModelClient 实现此接口
type MLService interface {
	// Predict 批量预测
	Predict(ctx context.Context, req *MLPredictRequest) (*MLPredictResponse, error)

	// Health 健康检查
	Health(ctx context.Context) error

	// Close 关闭连接
	Close(ctx context.Context) error
}

// MLPredictRequest 预测请求
type MLPredictRequest struct {
	// Instances 特征实例列表（每个实例是一个已标准化的特征向量）
	// 格式：[[f1, f2, f3, ...], [f1, f2, f3, ...], ...]
	Instances [][]float64

	// ModelName 模型名称（可选，如果服务支持多模型）
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string
}

// MLPredictResponse 预测响应
type MLPredictResponse struct {
	// Predictions 每个实例一行输出：
	//   - 二分类：[p] 或 [p0, p1]
	//   - 多分类：[p0, p1, ..., pk]
	Predictions [][]float64

	// ModelVersion 模型版本（如果服务返回）
	ModelVersion string
}
