package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/cardiokit/core"
)

// HTTPModelClient 是自定义 HTTP 推理服务的 core.MLService 实现，
// 适合把 sklearn / XGBoost 模型包在一个简单的 Python 服务里。
//
// 请求格式（JSON）：
//
//	{"model": "xgboost", "instances": [[0.1, -1.2, ...]]}
//
// 响应格式（JSON）：
//
//	{"predictions": [[0.3, 0.7]]}
type HTTPModelClient struct {
	Endpoint  string // 例如 "http://localhost:8080/predict"
	ModelName string
	Timeout   time.Duration
	Auth      *AuthConfig
	Client    *http.Client
}

func NewHTTPModelClient(endpoint, modelName string, timeout time.Duration, auth *AuthConfig) *HTTPModelClient {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPModelClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   timeout,
		Auth:      auth,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Predict 调用远程模型服务进行批量预测。
func (c *HTTPModelClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return &core.MLPredictResponse{}, nil
	}

	jsonData, err := json.Marshal(map[string]any{
		"model":     c.ModelName,
		"instances": req.Instances,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.Auth.apply(httpReq)

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("rpc error: status=%d, read body failed: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("rpc error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		Predictions []json.RawMessage `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	rows, err := decodeRows(result.Predictions)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(req.Instances) {
		return nil, fmt.Errorf("response predictions count mismatch: expected %d, got %d", len(req.Instances), len(rows))
	}
	return &core.MLPredictResponse{Predictions: rows}, nil
}

// Health 自定义服务没有统一的健康检查接口，只检查端点连通且没有 5xx。
func (c *HTTPModelClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("health check failed: status=%d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPModelClient) Close(_ context.Context) error {
	c.Client.CloseIdleConnections()
	return nil
}

var _ core.MLService = (*HTTPModelClient)(nil)
