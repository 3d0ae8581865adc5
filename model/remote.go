package model

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/cardiokit/core"
)

// RemoteClassifier 是通过 core.MLService 调用外部模型服务的 BinaryClassifier 实现。
// 支持 TF Serving、自定义 HTTP 推理服务等。
type RemoteClassifier struct {
	name      string
	Service   core.MLService
	NFeatures int
	Timeout   time.Duration
}

func NewRemoteClassifier(name string, svc core.MLService, nFeatures int, timeout time.Duration) *RemoteClassifier {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RemoteClassifier{name: name, Service: svc, NFeatures: nFeatures, Timeout: timeout}
}

func (m *RemoteClassifier) Name() string     { return m.name }
func (m *RemoteClassifier) NumFeatures() int { return m.NFeatures }

// PredictProba 调用远程服务。输出行为 [p] 时取 p，为 [p0, p1] 时取 p1。
func (m *RemoteClassifier) PredictProba(x []float64) (float64, error) {
	if len(x) != m.NFeatures {
		return 0, fmt.Errorf("remote %s: expected %d features, got %d", m.name, m.NFeatures, len(x))
	}
	row, err := predictRow(m.Service, m.name, x, m.Timeout)
	if err != nil {
		return 0, err
	}
	switch len(row) {
	case 1:
		return row[0], nil
	case 2:
		return row[1], nil
	default:
		return 0, fmt.Errorf("remote %s: expected 1 or 2 outputs, got %d", m.name, len(row))
	}
}

// RemoteDistribution 是通过 core.MLService 调用外部模型服务的 DistributionModel 实现，
// 例如部署在 TF Serving 上的 Keras 饮食模型。
type RemoteDistribution struct {
	name      string
	Service   core.MLService
	NFeatures int
	NClasses  int
	Timeout   time.Duration
}

func NewRemoteDistribution(name string, svc core.MLService, nFeatures, nClasses int, timeout time.Duration) *RemoteDistribution {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &RemoteDistribution{name: name, Service: svc, NFeatures: nFeatures, NClasses: nClasses, Timeout: timeout}
}

func (m *RemoteDistribution) Name() string     { return m.name }
func (m *RemoteDistribution) NumFeatures() int { return m.NFeatures }
func (m *RemoteDistribution) NumClasses() int  { return m.NClasses }

func (m *RemoteDistribution) PredictDistribution(x []float64) ([]float64, error) {
	if len(x) != m.NFeatures {
		return nil, fmt.Errorf("remote %s: expected %d features, got %d", m.name, m.NFeatures, len(x))
	}
	row, err := predictRow(m.Service, m.name, x, m.Timeout)
	if err != nil {
		return nil, err
	}
	if len(row) != m.NClasses {
		return nil, fmt.Errorf("remote %s: expected %d classes, got %d", m.name, m.NClasses, len(row))
	}
	return row, nil
}

// predictRow 发送单实例请求并返回第一行输出。
func predictRow(svc core.MLService, name string, x []float64, timeout time.Duration) ([]float64, error) {
	if svc == nil {
		return nil, fmt.Errorf("remote %s: service not configured", name)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := svc.Predict(ctx, &core.MLPredictRequest{Instances: [][]float64{x}})
	if err != nil {
		return nil, fmt.Errorf("remote %s: %w", name, err)
	}
	if resp == nil || len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("remote %s: empty response", name)
	}
	return resp.Predictions[0], nil
}
