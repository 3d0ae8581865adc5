package service

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeTFServing ServiceType = "tf_serving" // TensorFlow Serving REST API
	ServiceTypeKServe    ServiceType = "kserve"     // Open Inference Protocol（KServe V2 / Triton）
	ServiceTypeCustom    ServiceType = "custom"     // 自定义 HTTP 推理服务
)

// ServiceConfig 远程模型服务配置，嵌在模型产物的 "service" 字段中。
type ServiceConfig struct {
	// Type 服务类型
	Type ServiceType `json:"type" yaml:"type"`

	// Endpoint 服务端点
	// TF Serving: "http://localhost:8501"
	// KServe: "http://localhost:8000"
	// Custom: "http://localhost:8080/predict"
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// ModelName 模型名称
	ModelName string `json:"model_name" yaml:"model_name"`

	// ModelVersion 模型版本
	ModelVersion string `json:"model_version,omitempty" yaml:"model_version"`

	// Timeout 超时时间（秒）
	Timeout int `json:"timeout,omitempty" yaml:"timeout"`

	// Auth 认证信息（可选）
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `json:"type" yaml:"type"` // "basic", "bearer", "api_key"
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password"`
	Token    string `json:"token,omitempty" yaml:"token"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key"`
}

// apply 添加认证信息到 HTTP 请求
func (a *AuthConfig) apply(req *http.Request) {
	if a == nil {
		return
	}
	switch a.Type {
	case "basic":
		req.SetBasicAuth(a.Username, a.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case "api_key":
		req.Header.Set("X-API-Key", a.APIKey)
	}
}

// decodeRows 把服务返回的 predictions 统一为二维数组：
// 标量 p 视为 [p]，数组视为一行。
func decodeRows(raw []json.RawMessage) ([][]float64, error) {
	rows := make([][]float64, 0, len(raw))
	for i, r := range raw {
		var scalar float64
		if err := json.Unmarshal(r, &scalar); err == nil {
			rows = append(rows, []float64{scalar})
			continue
		}
		var row []float64
		if err := json.Unmarshal(r, &row); err != nil {
			return nil, fmt.Errorf("prediction %d: unexpected shape: %s", i, string(r))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
