package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rushteam/cardiokit/core"
)

// TFServingClient 是 TensorFlow Serving 的 REST 客户端实现。
//
// 饮食模型原本是 Keras 模型，可以直接用 TF Serving 托管：
//   - POST {endpoint}/v1/models/{name}[/versions/{v}]:predict
//   - 请求：{"instances": [[...]], "signature_name": "serving_default"}
//   - 响应：{"predictions": [[p0, p1, ...]]}
//
// 只实现 REST API（端口 8501）；gRPC 需要 protobuf 依赖，这里不支持。
type TFServingClient struct {
	// Endpoint 服务端点，例如 "http://localhost:8501"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选，为空则使用最新版本）
	ModelVersion string

	// SignatureName 签名名称（可选，默认为 "serving_default"）
	SignatureName string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	httpClient *http.Client
}

// NewTFServingClient 创建一个新的 TF Serving 客户端。
func NewTFServingClient(endpoint, modelName string, opts ...TFServingOption) *TFServingClient {
	client := &TFServingClient{
		Endpoint:      strings.TrimRight(endpoint, "/"),
		ModelName:     modelName,
		SignatureName: "serving_default",
		Timeout:       30 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.httpClient = &http.Client{
		Timeout: client.Timeout,
	}
	return client
}

// TFServingOption TF Serving 客户端配置选项
type TFServingOption func(*TFServingClient)

// WithTFServingVersion 设置模型版本
func WithTFServingVersion(version string) TFServingOption {
	return func(c *TFServingClient) {
		c.ModelVersion = version
	}
}

// WithTFServingSignature 设置签名名称
func WithTFServingSignature(signatureName string) TFServingOption {
	return func(c *TFServingClient) {
		c.SignatureName = signatureName
	}
}

// WithTFServingTimeout 设置超时时间
func WithTFServingTimeout(timeout time.Duration) TFServingOption {
	return func(c *TFServingClient) {
		c.Timeout = timeout
	}
}

// WithTFServingAuth 设置认证信息
func WithTFServingAuth(auth *AuthConfig) TFServingOption {
	return func(c *TFServingClient) {
		c.Auth = auth
	}
}

func (c *TFServingClient) modelURL() string {
	if c.ModelVersion != "" {
		return fmt.Sprintf("%s/v1/models/%s/versions/%s", c.Endpoint, c.ModelName, c.ModelVersion)
	}
	return fmt.Sprintf("%s/v1/models/%s", c.Endpoint, c.ModelName)
}

// Predict 实现 core.MLService 接口
func (c *TFServingClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances are required")
	}

	body := map[string]any{"instances": req.Instances}
	if c.SignatureName != "" {
		body["signature_name"] = c.SignatureName
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL()+":predict", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.Auth.apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tf serving error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
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

	return &core.MLPredictResponse{
		Predictions:  rows,
		ModelVersion: c.ModelVersion,
	}, nil
}

// Health 健康检查（GET 模型状态）
func (c *TFServingClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.Auth.apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Close 关闭连接
func (c *TFServingClient) Close(_ context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// 确保 TFServingClient 实现了 core.MLService 接口
var _ core.MLService = (*TFServingClient)(nil)
