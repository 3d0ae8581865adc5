// Package artifact 负责在启动时从 core.Store 读取训练产物并解码为推理所需的不可变对象。
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/ensemble"
	"github.com/rushteam/cardiokit/feature"
	"github.com/rushteam/cardiokit/model"
)

// 产物 key（文件名）
const (
	KeyColumns          = "columns.json"
	KeyScaler           = "scaler.json"
	KeyModelResults     = "model_results.json"
	KeyDietColumns      = "diet_columns.json"
	KeyDietScaler       = "diet_scaler.json"
	KeyDietModel        = "diet_model.json"
	KeyIndicatorMapping = "indicator_mapping.json"
	KeyMealPlanMapping  = "meal_plan_mapping.json"
)

// RiskModelNames 是三个风险模型的名称，也是输出中的 key
var RiskModelNames = []string{"logistic_regression", "random_forest", "xgboost"}

// RiskModelKey 返回风险模型产物的 key，例如 "xgboost_model.json"
func RiskModelKey(name string) string { return name + "_model.json" }

// DietModelName 是饮食模型名称
const DietModelName = "diet"

// Keys 返回一个完整产物包需要的所有 key
func Keys() []string {
	keys := []string{
		KeyColumns, KeyScaler, KeyModelResults,
		KeyDietColumns, KeyDietScaler, KeyDietModel,
		KeyIndicatorMapping, KeyMealPlanMapping,
	}
	for _, name := range RiskModelNames {
		keys = append(keys, RiskModelKey(name))
	}
	return keys
}

// Bundle 是解码后的全部产物，加载后只读。
type Bundle struct {
	RiskSchema core.FeatureSchema
	RiskScaler *feature.StandardScaler
	// RiskModels 与 RiskModelNames 同序
	RiskModels []model.BinaryClassifier
	Report     *ensemble.Report

	DietSchema       core.FeatureSchema
	DietScaler       *feature.StandardScaler
	DietModel        model.DistributionModel
	IndicatorMapping map[string]string
	MealPlans        core.LabelMap

	// Source 是产物来源（store 名称），用于日志
	Source string
}

// LoadBundle 并发读取并解码所有产物。任何一个产物缺失或无法解码都返回
// MissingArtifact 错误，调用方不应继续提供服务。
func LoadBundle(ctx context.Context, s core.Store) (*Bundle, error) {
	if s == nil {
		return nil, core.NewMissingArtifactError("store", fmt.Errorf("no artifact store configured"))
	}
	b := &Bundle{
		Source:     s.Name(),
		RiskModels: make([]model.BinaryClassifier, len(RiskModelNames)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	load := func(key string, decode func([]byte) error) {
		g.Go(func() error {
			data, err := s.Get(gctx, key)
			if err != nil {
				return core.NewMissingArtifactError(key, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if err := decode(data); err != nil {
				return core.NewMissingArtifactError(key, err)
			}
			return nil
		})
	}

	load(KeyColumns, func(data []byte) (err error) {
		b.RiskSchema, err = decodeSchema(data)
		return err
	})
	load(KeyScaler, func(data []byte) (err error) {
		b.RiskScaler, err = feature.DecodeStandardScaler(data)
		return err
	})
	load(KeyModelResults, func(data []byte) (err error) {
		b.Report, err = ensemble.DecodeReport(data)
		return err
	})
	for i, name := range RiskModelNames {
		load(RiskModelKey(name), func(data []byte) error {
			m, err := model.LoadClassifier(name, data)
			if err != nil {
				return err
			}
			b.RiskModels[i] = m
			return nil
		})
	}
	load(KeyDietColumns, func(data []byte) (err error) {
		b.DietSchema, err = decodeSchema(data)
		return err
	})
	load(KeyDietScaler, func(data []byte) (err error) {
		b.DietScaler, err = feature.DecodeStandardScaler(data)
		return err
	})
	load(KeyDietModel, func(data []byte) (err error) {
		b.DietModel, err = model.LoadDistribution(DietModelName, data)
		return err
	})
	load(KeyIndicatorMapping, func(data []byte) error {
		return json.Unmarshal(data, &b.IndicatorMapping)
	})
	load(KeyMealPlanMapping, func(data []byte) (err error) {
		b.MealPlans, err = DecodeLabelMap(data)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeSchema(data []byte) (core.FeatureSchema, error) {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return core.FeatureSchema(names), nil
}

// DecodeLabelMap 解析 {"0": "Mediterranean", "1": "DASH"} 形式的类别映射
func DecodeLabelMap(data []byte) (core.LabelMap, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(core.LabelMap, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("label map key %q is not a class index", k)
		}
		out[idx] = v
	}
	return out, nil
}
