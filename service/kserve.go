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

// KServeClient 是 Open Inference Protocol（KServe V2，Triton / MLServer 同样支持）的 REST 客户端。
//
//   - Infer: POST /v2/models/{name}[/versions/{v}]/infer
//   - 请求：{"inputs": [{"name": "input0", "shape": [batch, dim], "datatype": "FP64", "data": [...]}]}
//   - 响应：{"outputs": [{"name": "...", "shape": [batch, k], "data": [...]}]}
//   - Model Ready: GET /v2/models/{name}/ready
//
// V1 协议与 TF Serving REST 相同，使用 TFServingClient 即可。
type KServeClient struct {
	Endpoint     string
	ModelName    string
	ModelVersion string
	// InputName 输入张量名称，默认 "input0"
	InputName string
	// OutputName 期望的输出张量名称；为空或没有匹配时取 outputs[0]
	OutputName string
	Timeout    time.Duration
	Auth       *AuthConfig

	httpClient *http.Client
}

// KServeOption 配置 KServe 客户端
type KServeOption func(*KServeClient)

// WithKServeVersion 设置模型版本（路径会带 /versions/{version}）
func WithKServeVersion(version string) KServeOption {
	return func(c *KServeClient) { c.ModelVersion = version }
}

// WithKServeInputName 设置输入张量名称
func WithKServeInputName(name string) KServeOption {
	return func(c *KServeClient) { c.InputName = name }
}

// WithKServeOutputName 设置输出张量名称
func WithKServeOutputName(name string) KServeOption {
	return func(c *KServeClient) { c.OutputName = name }
}

// WithKServeTimeout 设置超时
func WithKServeTimeout(timeout time.Duration) KServeOption {
	return func(c *KServeClient) { c.Timeout = timeout }
}

// WithKServeAuth 设置认证
func WithKServeAuth(auth *AuthConfig) KServeOption {
	return func(c *KServeClient) { c.Auth = auth }
}

// NewKServeClient 创建客户端。endpoint 为根地址（如 http://localhost:8000）。
func NewKServeClient(endpoint, modelName string, opts ...KServeOption) *KServeClient {
	c := &KServeClient{
		Endpoint:  strings.TrimRight(endpoint, "/"),
		ModelName: modelName,
		InputName: "input0",
		Timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = &http.Client{Timeout: c.Timeout}
	return c
}

func (c *KServeClient) modelURL() string {
	if c.ModelVersion != "" {
		return fmt.Sprintf("%s/v2/models/%s/versions/%s", c.Endpoint, c.ModelName, c.ModelVersion)
	}
	return fmt.Sprintf("%s/v2/models/%s", c.Endpoint, c.ModelName)
}

type inferTensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type inferResponse struct {
	ModelName    string        `json:"model_name"`
	ModelVersion string        `json:"model_version"`
	Outputs      []inferTensor `json:"outputs"`
}

// Predict 实现 core.MLService。所有实例必须等长，按行优先展平为一个 FP64 张量。
func (c *KServeClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if req == nil || len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances are required")
	}
	rows := len(req.Instances)
	dim := len(req.Instances[0])
	data := make([]float64, 0, rows*dim)
	for i, row := range req.Instances {
		if len(row) != dim {
			return nil, fmt.Errorf("instance %d has %d features, expected %d", i, len(row), dim)
		}
		data = append(data, row...)
	}

	body := map[string]any{
		"inputs": []inferTensor{{
			Name:     c.InputName,
			Shape:    []int{rows, dim},
			Datatype: "FP64",
			Data:     data,
		}},
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kserve marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL()+"/infer", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("kserve create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.Auth.apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kserve request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("kserve error: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("kserve decode response: %w", err)
	}
	tensor, err := c.pickOutput(out.Outputs)
	if err != nil {
		return nil, err
	}
	predictions, err := splitRows(tensor.Data, rows)
	if err != nil {
		return nil, err
	}

	version := out.ModelVersion
	if version == "" {
		version = c.ModelVersion
	}
	return &core.MLPredictResponse{Predictions: predictions, ModelVersion: version}, nil
}

func (c *KServeClient) pickOutput(outputs []inferTensor) (*inferTensor, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("kserve empty outputs")
	}
	if c.OutputName != "" {
		for i := range outputs {
			if outputs[i].Name == c.OutputName {
				return &outputs[i], nil
			}
		}
	}
	return &outputs[0], nil
}

// splitRows 把行优先展平的数据切成 rows 行，每行等长
func splitRows(data []float64, rows int) ([][]float64, error) {
	if rows <= 0 || len(data) == 0 || len(data)%rows != 0 {
		return nil, fmt.Errorf("kserve output of %d values cannot be split into %d rows", len(data), rows)
	}
	width := len(data) / rows
	out := make([][]float64, rows)
	for i := range out {
		out[i] = data[i*width : (i+1)*width]
	}
	return out, nil
}

// Health 实现 core.MLService（GET 模型 ready 状态）
func (c *KServeClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelURL()+"/ready", nil)
	if err != nil {
		return fmt.Errorf("kserve health create request: %w", err)
	}
	c.Auth.apply(httpReq)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("kserve health request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("kserve health failed: status=%d, body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Close 实现 core.MLService
func (c *KServeClient) Close(_ context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ core.MLService = (*KServeClient)(nil)
