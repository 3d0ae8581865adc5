package model

import "math"

// Model 是已加载模型的最小抽象。模型加载后不可变，可被多个请求并发调用。
type Model interface {
	Name() string
	// NumFeatures 返回期望的输入向量长度
	NumFeatures() int
}

// BinaryClassifier 是二分类模型：输入标准化后的向量，输出阳性类概率（predict_proba[:, 1]）。
// 具体实现可以是本地模型（LR / 随机森林 / GBDT）或远程服务。
type BinaryClassifier interface {
	Model
	PredictProba(x []float64) (float64, error)
}

// DistributionModel 是多分类模型：输入标准化后的向量，输出每个类别的概率（softmax 分布）。
type DistributionModel interface {
	Model
	NumClasses() int
	PredictDistribution(x []float64) ([]float64, error)
}

// sigmoid Sigmoid 激活函数。
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// softmax 数值稳定的 softmax（先减去最大值）。
func softmax(z []float64) []float64 {
	if len(z) == 0 {
		return nil
	}
	maxV := z[0]
	for _, v := range z[1:] {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(z))
	sum := 0.0
	for i, v := range z {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
