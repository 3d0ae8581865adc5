package inference

import (
	"encoding/json"

	"github.com/rushteam/cardiokit/core"
	"github.com/rushteam/cardiokit/pipeline"
	"github.com/rushteam/cardiokit/pkg/dsl"
	"github.com/rushteam/cardiokit/pkg/utils"
)

// RiskReport 是风险任务的完整输出
type RiskReport struct {
	// Models 每个风险模型的结果，Order 为展示顺序
	Models   map[string]core.ScoreResult
	Order    []string
	Ensemble core.ScoreResult
	// Policy 为 weighted 或 fallback_mean
	Policy  string
	Members []string
}

// DietReport 是饮食任务的完整输出
type DietReport struct {
	Predicted core.Recommendation
	Top       []core.Recommendation
}

// Result 是单次预测的结果。每个子任务要么有完整报告，要么有错误，不会两者都有。
type Result struct {
	Risk    *RiskReport
	RiskErr error
	Diet    *DietReport
	DietErr error

	// Warnings 是输入校验规则产生的警告，不影响预测
	Warnings []dsl.Violation
	Labels   utils.Labels

	// 两个子任务的终态，缓存命中时用于通知 Hook
	riskState *pipeline.State
	dietState *pipeline.State
}

// TaskError 是子任务错误的结构化表示
type TaskError struct {
	Task    string `json:"task"`
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewTaskError 把错误转为 TaskError；非 StageError 时 stage 为空
func NewTaskError(task string, err error) *TaskError {
	if err == nil {
		return nil
	}
	te := &TaskError{Task: task, Code: "INTERNAL", Message: err.Error()}
	if se, ok := pipeline.AsStageError(err); ok {
		te.Task = se.Task
		te.Stage = se.Stage
		te.Kind = string(se.Kind)
		te.Code = se.Code()
		te.Message = se.Err.Error()
	} else if de := core.GetDomainError(err); de != nil {
		te.Code = de.Code
	}
	return te
}

type scoreJSON struct {
	Probability float64 `json:"probability"`
	Prediction  int     `json:"prediction"`
}

type mealPlanJSON struct {
	MealPlan    string  `json:"meal_plan"`
	Probability float64 `json:"probability"`
}

type dietJSON struct {
	PredictedMealPlan  string         `json:"predicted_meal_plan"`
	Probability        float64        `json:"probability"`
	TopRecommendations []mealPlanJSON `json:"top_recommendations"`
}

type resultJSON struct {
	HeartAttackPredictions map[string]scoreJSON  `json:"heart_attack_predictions,omitempty"`
	DietRecommendation     *dietJSON             `json:"diet_recommendation,omitempty"`
	Errors                 map[string]*TaskError `json:"errors,omitempty"`
	Warnings               []dsl.Violation       `json:"warnings,omitempty"`
	Labels                 utils.Labels          `json:"labels,omitempty"`
}

// ensembleKey 是集成结果在 heart_attack_predictions 中的 key
const ensembleKey = "ensemble"

// MarshalJSON 输出与训练侧 predict 脚本一致的结构：
//
//	{"heart_attack_predictions": {"logistic_regression": {"probability": .., "prediction": ..}, ..., "ensemble": {...}},
//	 "diet_recommendation": {"predicted_meal_plan": .., "probability": .., "top_recommendations": [...]}}
//
// 失败的子任务出现在 "errors" 中。
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Warnings: r.Warnings, Labels: r.Labels}
	if r.Risk != nil {
		out.HeartAttackPredictions = make(map[string]scoreJSON, len(r.Risk.Models)+1)
		for name, s := range r.Risk.Models {
			out.HeartAttackPredictions[name] = scoreJSON{Probability: s.Probability, Prediction: s.Decision}
		}
		out.HeartAttackPredictions[ensembleKey] = scoreJSON{
			Probability: r.Risk.Ensemble.Probability,
			Prediction:  r.Risk.Ensemble.Decision,
		}
	}
	if r.Diet != nil {
		d := &dietJSON{
			PredictedMealPlan:  r.Diet.Predicted.Category.Label,
			Probability:        r.Diet.Predicted.Probability,
			TopRecommendations: make([]mealPlanJSON, 0, len(r.Diet.Top)),
		}
		for _, rec := range r.Diet.Top {
			d.TopRecommendations = append(d.TopRecommendations, mealPlanJSON{
				MealPlan:    rec.Category.Label,
				Probability: rec.Probability,
			})
		}
		out.DietRecommendation = d
	}
	if r.RiskErr != nil || r.DietErr != nil {
		out.Errors = make(map[string]*TaskError, 2)
		if r.RiskErr != nil {
			out.Errors[pipeline.TaskRisk] = NewTaskError(pipeline.TaskRisk, r.RiskErr)
		}
		if r.DietErr != nil {
			out.Errors[pipeline.TaskDiet] = NewTaskError(pipeline.TaskDiet, r.DietErr)
		}
	}
	return json.Marshal(out)
}

func riskReport(st *pipeline.State) *RiskReport {
	rep := &RiskReport{
		Models:  make(map[string]core.ScoreResult, len(st.Scores)),
		Order:   append([]string(nil), st.ScoreOrder...),
		Policy:  st.EnsemblePolicy,
		Members: append([]string(nil), st.EnsembleMembers...),
	}
	for name, s := range st.Scores {
		rep.Models[name] = s
	}
	if st.Ensemble != nil {
		rep.Ensemble = *st.Ensemble
	}
	return rep
}

func dietReport(st *pipeline.State) *DietReport {
	rep := &DietReport{Top: append([]core.Recommendation(nil), st.Recommendations...)}
	if len(rep.Top) > 0 {
		rep.Predicted = rep.Top[0]
	}
	return rep
}
