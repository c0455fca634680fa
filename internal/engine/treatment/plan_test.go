package treatment

import (
	"testing"

	"malnutrition-workers/internal/engine/classify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	book, err := DefaultRuleBook()
	require.NoError(t, err)
	return NewBuilder(book)
}

func result(d classify.Diagnosis) classify.Result {
	return classify.Result{Primary: d, Tier: d.Tier(), Risk: classify.RiskMedium}
}

func TestDefaultRuleBook_CoversEveryPrimaryDiagnosis(t *testing.T) {
	b := newTestBuilder(t)
	for _, d := range classify.Diagnoses() {
		if d.Tier() == classify.TierMild {
			continue
		}
		plan, err := b.Build(result(d), nil, Flags{AgeMonths: 30, WeightKg: 10})
		require.NoError(t, err, d)
		assert.NotEmpty(t, plan.ImmediateActions, d)
		assert.NotEmpty(t, plan.NutritionPlan.Approach, d)
		assert.NotEmpty(t, plan.MonitoringSchedule.FollowUps, d)
		assert.NotEmpty(t, plan.DischargeCriteria, d)
	}
}

func TestBuild_UnknownKey(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Build(classify.Result{Primary: classify.MildWasting, Tier: classify.TierMild}, nil, Flags{})
	assert.ErrorContains(t, err, "no treatment rule")
}

func TestBuild_RiskFactorOrderDoesNotMatter(t *testing.T) {
	b := newTestBuilder(t)
	c := result(classify.ModerateStunting)
	f := Flags{AgeMonths: 30, WeightKg: 11, DiarrheaDays: 3}

	p1, err := b.Build(c, []string{"concurrent mild wasting", "prolonged fever (8 days)", "very poor appetite"}, f)
	require.NoError(t, err)
	p2, err := b.Build(c, []string{"very poor appetite", "concurrent mild wasting", "prolonged fever (8 days)", "very poor appetite"}, f)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Contains(t, p1.MonitoringSchedule.Directives, "Follow up on very poor appetite")
}

func TestBuild_SevereSections(t *testing.T) {
	b := newTestBuilder(t)

	tests := []struct {
		name        string
		diagnosis   classify.Diagnosis
		flags       Flags
		wantSachets int
		wantAction  string
		wantSign    string
		wantMedical []string
	}{
		{
			name:        "edematous infant",
			diagnosis:   classify.SAMEdematous,
			flags:       Flags{AgeMonths: 9, WeightKg: 5.4, Edema: true},
			wantSachets: 5,
			wantAction:  "Admit to stabilization center immediately",
			wantSign:    "Sunken fontanelle",
			wantMedical: []string{"Vitamin A 100,000 IU single dose", "Monitor electrolytes (potassium, magnesium) until edema resolves"},
		},
		{
			name:        "severe wasting older child",
			diagnosis:   classify.SevereWasting,
			flags:       Flags{AgeMonths: 30, WeightKg: 8.9, DiarrheaDays: 15},
			wantSachets: 8,
			wantAction:  "Start RUTF (Ready-to-Use Therapeutic Food) immediately",
			wantSign:    "Extreme weakness",
			wantMedical: []string{"Vitamin A 200,000 IU single dose", "Albendazole 400 mg single dose", "Zinc 10-20 mg daily for 10-14 days for diarrhea"},
		},
		{
			name:        "small child gets the minimum ration",
			diagnosis:   classify.SAMNonEdematous,
			flags:       Flags{AgeMonths: 3, WeightKg: 1.8},
			wantSachets: MinRUTFSachets,
			wantAction:  "Check for medical complications",
			wantSign:    "Not breastfeeding or drinking",
			wantMedical: []string{"Vitamin A 100,000 IU single dose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := b.Build(result(tt.diagnosis), nil, tt.flags)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSachets, plan.NutritionPlan.RUTFSachetsPerDay)
			assert.Contains(t, plan.ImmediateActions, tt.wantAction)
			assert.Contains(t, plan.EmergencySigns, "Convulsions or unconsciousness")
			assert.Contains(t, plan.EmergencySigns, tt.wantSign)
			assert.Len(t, plan.EmergencySigns, 10)
			for _, m := range tt.wantMedical {
				assert.Contains(t, plan.MedicalInterventions, m)
			}
			assert.Len(t, plan.MonitoringSchedule.Phases, 2)
			assert.Equal(t, []int{3, 14, 42, 56, 84}, followUpDays(plan))
		})
	}
}

func TestBuild_ModerateAndNormal(t *testing.T) {
	b := newTestBuilder(t)

	moderate, err := b.Build(result(classify.ModerateWasting), nil, Flags{AgeMonths: 18, WeightKg: 8})
	require.NoError(t, err)
	assert.Empty(t, moderate.EmergencySigns)
	assert.Zero(t, moderate.NutritionPlan.RUTFSachetsPerDay)
	assert.Contains(t, moderate.NutritionPlan.Directives, "Continue breastfeeding on demand alongside all other feeds")
	assert.Contains(t, moderate.MedicalInterventions, "Vitamin A 200,000 IU single dose")
	assert.NotContains(t, moderate.MedicalInterventions, "Albendazole 400 mg single dose")
	assert.Equal(t, []int{7, 28, 84, 112}, followUpDays(moderate))
	assert.Contains(t, moderate.FamilyEducation, "Continue breastfeeding up to 2 years")

	normal, err := b.Build(result(classify.Normal), nil, Flags{AgeMonths: 40, WeightKg: 15})
	require.NoError(t, err)
	assert.Empty(t, normal.EmergencySigns)
	assert.Empty(t, normal.MedicalInterventions)
	assert.NotContains(t, normal.NutritionPlan.Directives, "Continue breastfeeding on demand alongside all other feeds")
	assert.Equal(t, []int{28}, followUpDays(normal))
	assert.Contains(t, normal.FamilyEducation, "Three meals and two snacks every day")
}

func TestBuild_OptionalAdditions(t *testing.T) {
	b := newTestBuilder(t)
	target := 8.3

	plan, err := b.Build(result(classify.ModerateWasting), nil, Flags{
		AgeMonths:      4,
		WeightKg:       5,
		CashTransfer:   true,
		ReviewRequired: true,
		TargetWeightKg: &target,
	})
	require.NoError(t, err)

	assert.Equal(t, "Obtain clinical second opinion", plan.ImmediateActions[len(plan.ImmediateActions)-1])
	assert.Contains(t, plan.FamilyEducation, "Available social support programs and how to access them")
	assert.Contains(t, plan.FamilyEducation, "Exclusive breastfeeding until 6 months")
	require.NotNil(t, plan.NutritionPlan.TargetWeightKg)
	assert.Equal(t, 8.3, *plan.NutritionPlan.TargetWeightKg)
	assert.Contains(t, plan.SuccessCriteria, "Reach target weight of 8.3 kg (weight-for-height -2 SD)")

	target = 1
	assert.Equal(t, 8.3, *plan.NutritionPlan.TargetWeightKg)
}

func TestPlan_CloneIsIndependent(t *testing.T) {
	b := newTestBuilder(t)
	plan, err := b.Build(result(classify.SevereWasting), []string{"very poor appetite"}, Flags{AgeMonths: 30, WeightKg: 9})
	require.NoError(t, err)

	cp := plan.Clone()
	cp.ImmediateActions[0] = "changed"
	cp.MonitoringSchedule.Phases[0].Activities[0] = "changed"
	cp.MonitoringSchedule.FollowUps[0].Day = 99

	assert.NotEqual(t, "changed", plan.ImmediateActions[0])
	assert.NotEqual(t, "changed", plan.MonitoringSchedule.Phases[0].Activities[0])
	assert.Equal(t, 3, plan.MonitoringSchedule.FollowUps[0].Day)
}

func TestBuild_DoesNotShareRuleBookSlices(t *testing.T) {
	b := newTestBuilder(t)
	first, err := b.Build(result(classify.SevereWasting), nil, Flags{AgeMonths: 30, WeightKg: 9})
	require.NoError(t, err)
	first.MonitoringSchedule.Phases[0].Activities[0] = "changed"
	first.DischargeCriteria[0] = "changed"

	second, err := b.Build(result(classify.SevereWasting), nil, Flags{AgeMonths: 30, WeightKg: 9})
	require.NoError(t, err)
	assert.NotEqual(t, "changed", second.MonitoringSchedule.Phases[0].Activities[0])
	assert.NotEqual(t, "changed", second.DischargeCriteria[0])
}

func TestParseRuleBook_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown field", yaml: "templates: {}\nextra: 1\n", want: "decode rule book"},
		{name: "unknown diagnosis", yaml: "plans:\n  - diagnosis: Scurvy\n    tier: Severe\n    template: x\n", want: "unknown diagnosis"},
		{name: "tier mismatch", yaml: "plans:\n  - diagnosis: Normal\n    tier: Severe\n    template: x\n", want: "is tier None"},
		{name: "unknown template", yaml: "plans:\n  - diagnosis: Normal\n    tier: None\n    template: x\n", want: "unknown template"},
		{name: "missing plans", yaml: "templates:\n  n: {}\nplans:\n  - diagnosis: Normal\n    tier: None\n    template: n\n", want: "no plan for"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleBook([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func followUpDays(p Plan) []int {
	days := make([]int, 0, len(p.MonitoringSchedule.FollowUps))
	for _, f := range p.MonitoringSchedule.FollowUps {
		days = append(days, f.Day)
	}
	return days
}
