// Package treatment expands a classification into a structured treatment plan.
//
// Build is a lookup-and-merge over the rule book: the (diagnosis, tier) template supplies
// the static sections and conditional blocks are appended from the child's flags. The
// result depends only on its inputs; risk factors are treated as a set.
package treatment

import (
	"fmt"
	"math"
	"sort"

	"malnutrition-workers/internal/engine/classify"
)

const (
	InfantAgeMonths        = 12
	BreastfeedingAgeMonths = 24
	DewormingAgeMonths     = 24
	MinRUTFSachets         = 2
)

// Plan is the treatment plan attached to an assessment.
type Plan struct {
	ImmediateActions     []string      `json:"immediate_actions"`
	NutritionPlan        NutritionPlan `json:"nutrition_plan"`
	MedicalInterventions []string      `json:"medical_interventions"`
	MonitoringSchedule   Monitoring    `json:"monitoring_schedule"`
	FamilyEducation      []string      `json:"family_education"`
	SuccessCriteria      []string      `json:"success_criteria"`
	DischargeCriteria    []string      `json:"discharge_criteria"`
	EmergencySigns       []string      `json:"emergency_signs"`
}

type NutritionPlan struct {
	Approach          string   `json:"approach"`
	FeedingFrequency  string   `json:"feeding_frequency"`
	EnergyTarget      string   `json:"energy_target"`
	Directives        []string `json:"directives"`
	RUTFSachetsPerDay int      `json:"rutf_sachets_per_day,omitempty"`
	TargetWeightKg    *float64 `json:"target_weight_kg,omitempty"`
}

type Monitoring struct {
	Frequency  string     `json:"frequency"`
	Phases     []Phase    `json:"phases"`
	FollowUps  []FollowUp `json:"follow_ups"`
	Directives []string   `json:"directives"`
}

// Phase is one stage of a treatment programme.
type Phase struct {
	Name       string   `json:"name" yaml:"name"`
	Duration   string   `json:"duration" yaml:"duration"`
	Frequency  string   `json:"frequency" yaml:"frequency"`
	Activities []string `json:"activities" yaml:"activities"`
}

// FollowUp is a scheduled visit, Day days after the assessment.
type FollowUp struct {
	Day     int    `json:"day" yaml:"day"`
	Purpose string `json:"purpose" yaml:"purpose"`
}

// Flags carry the child-specific inputs that switch conditional sections on.
type Flags struct {
	AgeMonths      int
	WeightKg       float64
	Edema          bool
	DiarrheaDays   int
	CashTransfer   bool
	ReviewRequired bool
	TargetWeightKg *float64
}

// Builder builds plans from a rule book. It is safe for concurrent use.
type Builder struct {
	book *RuleBook
}

func NewBuilder(book *RuleBook) *Builder {
	return &Builder{book: book}
}

// Build returns the plan for the classification. riskFactors may arrive in any order.
func (b *Builder) Build(c classify.Result, riskFactors []string, f Flags) (Plan, error) {
	e, ok := b.book.plans[planKey{c.Primary, c.Tier}]
	if !ok {
		return Plan{}, fmt.Errorf("no treatment rule for %s/%s", c.Primary, c.Tier)
	}
	cond := b.book.conditional
	tpl := e.base

	plan := Plan{
		ImmediateActions:     concat(e.extra.ImmediateActions, tpl.ImmediateActions),
		MedicalInterventions: concat(tpl.MedicalInterventions),
		FamilyEducation:      concat(cond.GeneralEducation, ageEducationFor(cond.AgeEducation, f.AgeMonths), tpl.FamilyEducation, e.extra.FamilyEducation),
		SuccessCriteria:      concat(tpl.SuccessCriteria),
		DischargeCriteria:    concat(tpl.DischargeCriteria),
		EmergencySigns:       []string{},
		NutritionPlan: NutritionPlan{
			Approach:         tpl.Nutrition.Approach,
			FeedingFrequency: tpl.Nutrition.FeedingFrequency,
			EnergyTarget:     tpl.Nutrition.EnergyTarget,
			Directives:       concat(tpl.Nutrition.Directives),
		},
		MonitoringSchedule: Monitoring{
			Frequency:  tpl.Monitoring.Frequency,
			Phases:     clonePhases(tpl.Monitoring.Phases),
			FollowUps:  append([]FollowUp{}, tpl.Monitoring.FollowUps...),
			Directives: concat(tpl.Monitoring.Directives),
		},
	}

	if f.ReviewRequired {
		plan.ImmediateActions = append(plan.ImmediateActions, cond.SecondOpinion)
	}

	if f.AgeMonths < BreastfeedingAgeMonths {
		plan.NutritionPlan.Directives = append(plan.NutritionPlan.Directives, cond.Breastfeeding...)
	}
	if c.Tier == classify.TierSevere {
		sachets := int(math.Max(MinRUTFSachets, math.Floor(f.WeightKg)))
		plan.NutritionPlan.RUTFSachetsPerDay = sachets
		plan.NutritionPlan.Directives = append(plan.NutritionPlan.Directives, fmt.Sprintf(cond.RUTFRation, sachets))
	}
	if f.TargetWeightKg != nil {
		w := *f.TargetWeightKg
		plan.NutritionPlan.TargetWeightKg = &w
		plan.SuccessCriteria = append(plan.SuccessCriteria, fmt.Sprintf(cond.TargetWeight, w))
	}

	if treatsUndernutrition(c) {
		if f.AgeMonths < InfantAgeMonths {
			plan.MedicalInterventions = append(plan.MedicalInterventions, cond.VitaminAInfant)
		} else {
			plan.MedicalInterventions = append(plan.MedicalInterventions, cond.VitaminA)
		}
		if f.AgeMonths >= DewormingAgeMonths {
			plan.MedicalInterventions = append(plan.MedicalInterventions, cond.Deworming)
		}
	}
	if f.DiarrheaDays > 0 {
		plan.MedicalInterventions = append(plan.MedicalInterventions, cond.Zinc)
	}
	if f.Edema {
		plan.MedicalInterventions = append(plan.MedicalInterventions, cond.Electrolytes)
	}

	for _, rf := range uniqueSorted(riskFactors) {
		plan.MonitoringSchedule.Directives = append(plan.MonitoringSchedule.Directives, fmt.Sprintf(cond.RiskFactorFollowUp, rf))
	}

	if f.CashTransfer {
		plan.FamilyEducation = append(plan.FamilyEducation, cond.SocialSupport)
	}

	if c.Tier == classify.TierSevere {
		plan.EmergencySigns = concat(cond.EmergencySigns)
		if f.AgeMonths < InfantAgeMonths {
			plan.EmergencySigns = append(plan.EmergencySigns, cond.InfantEmergencySigns...)
		} else {
			plan.EmergencySigns = append(plan.EmergencySigns, cond.ChildEmergencySigns...)
		}
	}

	return plan, nil
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	out := p
	out.ImmediateActions = concat(p.ImmediateActions)
	out.MedicalInterventions = concat(p.MedicalInterventions)
	out.FamilyEducation = concat(p.FamilyEducation)
	out.SuccessCriteria = concat(p.SuccessCriteria)
	out.DischargeCriteria = concat(p.DischargeCriteria)
	out.EmergencySigns = concat(p.EmergencySigns)
	out.NutritionPlan.Directives = concat(p.NutritionPlan.Directives)
	if p.NutritionPlan.TargetWeightKg != nil {
		w := *p.NutritionPlan.TargetWeightKg
		out.NutritionPlan.TargetWeightKg = &w
	}
	out.MonitoringSchedule.Phases = clonePhases(p.MonitoringSchedule.Phases)
	out.MonitoringSchedule.FollowUps = append([]FollowUp{}, p.MonitoringSchedule.FollowUps...)
	out.MonitoringSchedule.Directives = concat(p.MonitoringSchedule.Directives)
	return out
}

func treatsUndernutrition(c classify.Result) bool {
	return c.Tier >= classify.TierModerate && c.Primary != classify.Overweight
}

func ageEducationFor(bands []ageEducation, ageMonths int) []string {
	for _, b := range bands {
		if ageMonths <= b.MaxAgeMonths {
			return b.Items
		}
	}
	return bands[len(bands)-1].Items
}

// concat joins lists into a fresh, never-nil slice.
func concat(lists ...[]string) []string {
	out := []string{}
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func clonePhases(in []Phase) []Phase {
	out := make([]Phase, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Activities = concat(p.Activities)
	}
	return out
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
