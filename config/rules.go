package config

import "github.com/rushteam/cardiokit/pkg/dsl"

// DefaultRules 是预测表单上各字段的取值范围。
// 超出范围的输入仍会被预测，只在结果中给出警告。
func DefaultRules() []dsl.Rule {
	return []dsl.Rule{
		dsl.RangeRule("Age", 18, 100),
		dsl.OneOfRule("Sex", 0, 1),
		dsl.RangeRule("Cholesterol", 100, 400),
		dsl.RangeRule("Heart Rate", 40, 200),
		dsl.OneOfRule("Diabetes", 0, 1),
		dsl.OneOfRule("Family History", 0, 1),
		dsl.OneOfRule("Smoking", 0, 1),
		dsl.OneOfRule("Obesity", 0, 1),
		dsl.OneOfRule("Alcohol Consumption", 0, 1),
		dsl.RangeRule("Exercise Hours Per Week", 0, 40),
		dsl.OneOfRule("Diet", 0, 0.5, 1),
		dsl.OneOfRule("Previous Heart Problems", 0, 1),
		dsl.OneOfRule("Medication Use", 0, 1),
		dsl.RangeRule("Stress Level", 1, 10),
		dsl.RangeRule("Sedentary Hours Per Day", 0, 24),
		dsl.RangeRule("BMI", 15, 50),
		dsl.RangeRule("Triglycerides", 50, 800),
		dsl.RangeRule("Physical Activity Days Per Week", 0, 7),
		dsl.RangeRule("Sleep Hours Per Day", 1, 12),
		dsl.RangeRule("Systolic", 90, 200),
		dsl.RangeRule("Diastolic", 60, 120),
	}
}
