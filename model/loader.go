package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/service"
)

// 模型产物类型
const (
	TypeLogisticRegression = "logistic_regression"
	TypeRandomForest       = "random_forest"
	TypeGBDT               = "gbdt"
	TypeMLP                = "mlp"
	TypeRemote             = "remote"
)

// artifact 是模型产物的 JSON 结构，字段按 type 取用：
//
//	{"type": "logistic_regression", "coefficients": [...], "intercept": 0.1}
//	{"type": "random_forest", "n_features": 21, "trees": [{"nodes": [...]}]}
//	{"type": "gbdt", "n_features": 21, "base_margin": 0, "trees": [...]}
//	{"type": "mlp", "layers": [{"weights": [[...]], "bias": [...], "activation": "relu"}]}
//	{"type": "remote", "n_features": 21, "n_classes": 4, "service": {"type": "tf_serving", ...}}
type artifact struct {
	Type         string                 `json:"type"`
	Coefficients []float64              `json:"coefficients"`
	Intercept    float64                `json:"intercept"`
	NFeatures    int                    `json:"n_features"`
	NClasses     int                    `json:"n_classes"`
	BaseMargin   float64                `json:"base_margin"`
	Trees        []Tree                 `json:"trees"`
	Layers       []DenseLayer           `json:"layers"`
	Service      *service.ServiceConfig `json:"service"`
}

func decodeArtifact(data []byte) (*artifact, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Type == "" {
		return nil, fmt.Errorf("model artifact has no type")
	}
	return &a, nil
}

// LoadClassifier 从产物加载二分类模型
func LoadClassifier(name string, data []byte) (BinaryClassifier, error) {
	a, err := decodeArtifact(data)
	if err != nil {
		return nil, err
	}
	switch a.Type {
	case TypeLogisticRegression:
		if len(a.Coefficients) == 0 {
			return nil, fmt.Errorf("%s: no coefficients", name)
		}
		return NewLRModel(name, a.Coefficients, a.Intercept), nil
	case TypeRandomForest:
		return NewRandomForestModel(name, a.NFeatures, a.Trees)
	case TypeGBDT:
		return NewGBDTModel(name, a.NFeatures, a.BaseMargin, a.Trees)
	case TypeRemote:
		svc, timeout, err := remoteService(name, a)
		if err != nil {
			return nil, err
		}
		return NewRemoteClassifier(name, svc, a.NFeatures, timeout), nil
	default:
		return nil, fmt.Errorf("%s: unsupported classifier type %q", name, a.Type)
	}
}

// LoadDistribution 从产物加载多分类模型
func LoadDistribution(name string, data []byte) (DistributionModel, error) {
	a, err := decodeArtifact(data)
	if err != nil {
		return nil, err
	}
	switch a.Type {
	case TypeMLP:
		return NewMLPModel(name, a.Layers)
	case TypeRemote:
		if a.NClasses <= 0 {
			return nil, fmt.Errorf("%s: n_classes must be positive", name)
		}
		svc, timeout, err := remoteService(name, a)
		if err != nil {
			return nil, err
		}
		return NewRemoteDistribution(name, svc, a.NFeatures, a.NClasses, timeout), nil
	default:
		return nil, fmt.Errorf("%s: unsupported distribution type %q", name, a.Type)
	}
}

func remoteService(name string, a *artifact) (core.MLService, time.Duration, error) {
	if a.NFeatures <= 0 {
		return nil, 0, fmt.Errorf("%s: n_features must be positive", name)
	}
	if err := service.ValidateConfig(a.Service); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	svc, err := service.NewMLService(a.Service)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", name, err)
	}
	return svc, time.Duration(a.Service.Timeout) * time.Second, nil
}
