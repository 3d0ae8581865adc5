package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/rushteam/cardiokit/core"
)

// NewMLService 根据配置创建 MLService 实例（工厂方法）。
func NewMLService(config *ServiceConfig) (core.MLService, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	switch config.Type {
	case ServiceTypeTFServing:
		opts := []TFServingOption{
			WithTFServingTimeout(timeout),
		}
		if config.ModelVersion != "" {
			opts = append(opts, WithTFServingVersion(config.ModelVersion))
		}
		if config.Auth != nil {
			opts = append(opts, WithTFServingAuth(config.Auth))
		}
		return NewTFServingClient(config.Endpoint, config.ModelName, opts...), nil

	case ServiceTypeKServe:
		opts := []KServeOption{WithKServeTimeout(timeout), WithKServeAuth(config.Auth)}
		if config.ModelVersion != "" {
			opts = append(opts, WithKServeVersion(config.ModelVersion))
		}
		return NewKServeClient(config.Endpoint, config.ModelName, opts...), nil

	case ServiceTypeCustom:
		return NewHTTPModelClient(config.Endpoint, config.ModelName, timeout, config.Auth), nil

	default:
		return nil, fmt.Errorf("unsupported service type: %s", config.Type)
	}
}

// ValidateConfig 验证服务配置
func ValidateConfig(config *ServiceConfig) error {
	if config == nil {
		return fmt.Errorf("service config is required")
	}
	if config.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !hasHTTPPrefix(config.Endpoint) {
		return fmt.Errorf("endpoint %q must start with http:// or https://", config.Endpoint)
	}
	if config.ModelName == "" && (config.Type == ServiceTypeTFServing || config.Type == ServiceTypeKServe) {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// hasHTTPPrefix 检查是否包含 HTTP 前缀（只支持 REST）
func hasHTTPPrefix(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
