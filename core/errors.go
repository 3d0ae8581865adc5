package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、模块（Module）和消息（Message）
//   - 可以包装底层错误（Err），支持 errors.Is / errors.As
//
// 使用场景：
//   - Schema 错误：SCHEMA_ERROR（schema 为空或格式错误，整个请求失败）
//   - 维度错误：DIMENSION_MISMATCH（向量与 scaler / 模型长度不一致，仅影响当前子任务）
//   - 推理错误：INFERENCE_ERROR（模型拒绝输入或不可用，仅影响当前子任务）
//   - 产物缺失：MISSING_ARTIFACT（启动加载失败，服务不得开始对外提供服务）
type DomainError struct {
	Code    string // 错误代码（如 "SCHEMA_ERROR", "INFERENCE_ERROR"）
	Message string // 错误消息
	Module  string // 模块名称（如 "feature", "model", "artifact"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// IsDomainError 检查错误链中是否包含 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code string, err error, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound          = "NOT_FOUND"          // 资源不存在
	ErrorCodeInvalidInput      = "INVALID_INPUT"      // 输入无效
	ErrorCodeSchema            = "SCHEMA_ERROR"       // schema 为空或格式错误
	ErrorCodeDimensionMismatch = "DIMENSION_MISMATCH" // 向量长度与 scaler / 模型不一致
	ErrorCodeInference         = "INFERENCE_ERROR"    // 模型拒绝输入或不可用
	ErrorCodeMissingArtifact   = "MISSING_ARTIFACT"   // 启动时必需产物加载失败
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleFeature  = "feature"  // 特征对齐 / 标准化
	ModuleModel    = "model"    // 模型推理
	ModuleEnsemble = "ensemble" // 集成
	ModuleRerank   = "rerank"   // Top-K 选择
	ModuleArtifact = "artifact" // 产物加载
	ModuleService  = "service"  // 远程模型服务
)

// NewSchemaError 创建 SCHEMA_ERROR
func NewSchemaError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeSchema, fmt.Sprintf(format, args...))
}

// NewDimensionMismatchError 创建 DIMENSION_MISMATCH
func NewDimensionMismatchError(module string, want, got int) *DomainError {
	return NewDomainError(module, ErrorCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", want, got))
}

// NewInferenceError 创建 INFERENCE_ERROR
func NewInferenceError(err error, format string, args ...any) *DomainError {
	return WrapDomainError(ModuleModel, ErrorCodeInference, err, format, args...)
}

// NewMissingArtifactError 创建 MISSING_ARTIFACT，key 为产物名（如 "scaler.json"）
func NewMissingArtifactError(key string, err error) *DomainError {
	return WrapDomainError(ModuleArtifact, ErrorCodeMissingArtifact, err, "artifact %q unavailable", key)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsSchemaError 检查错误是否为 SCHEMA_ERROR
func IsSchemaError(err error) bool { return hasCode(err, ErrorCodeSchema) }

// IsDimensionMismatch 检查错误是否为 DIMENSION_MISMATCH
func IsDimensionMismatch(err error) bool { return hasCode(err, ErrorCodeDimensionMismatch) }

// IsInferenceError 检查错误是否为 INFERENCE_ERROR
func IsInferenceError(err error) bool { return hasCode(err, ErrorCodeInference) }

// IsMissingArtifact 检查错误是否为 MISSING_ARTIFACT
func IsMissingArtifact(err error) bool { return hasCode(err, ErrorCodeMissingArtifact) }
