// Package classify maps z-scores and clinical flags to a diagnosis, a severity tier and a
// risk level.
//
// Rules are evaluated in a fixed cascade. Every rule that matches contributes a condition;
// the primary diagnosis is the condition with the highest tier, ties going to the rule that
// comes first. Mild findings are never primary and only surface as risk factors.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/engine/zscore"
	"malnutrition-workers/internal/models"
)

const (
	SevereZ     = -3.0
	ModerateZ   = -2.0
	MildZ       = -1.0
	OverweightZ = 2.0

	SevereMUACCm   = 11.5
	ModerateMUACCm = 12.5

	PersistentDiarrheaDays = 14
	ProlongedFeverDays     = 7
	FrequentVomiting       = 3
)

// SourceMUAC and SourceEdema name non z-score criteria.
const (
	SourceMUAC  = "muac_cm"
	SourceEdema = "edema"
)

// Criterion is the measurement that decided a condition.
type Criterion struct {
	Source    string  `json:"source"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Condition is one detected finding.
type Condition struct {
	Diagnosis Diagnosis `json:"diagnosis"`
	Tier      Tier      `json:"tier"`
	Rule      int       `json:"rule"`
	Criterion Criterion `json:"criterion"`
}

// Flags are the non z-score inputs to classification.
type Flags struct {
	AgeMonths int
	Edema     *bool
	MUACCm    *float64
	Symptoms  *models.ClinicalSymptoms
}

// FlagsFrom extracts classification flags from a measurement.
func FlagsFrom(in models.MeasurementInput) Flags {
	return Flags{AgeMonths: in.AgeMonths, Edema: in.Edema, MUACCm: in.MUACCm, Symptoms: in.Symptoms}
}

// Result is the outcome of classification.
type Result struct {
	Primary     Diagnosis   `json:"primary_diagnosis"`
	Tier        Tier        `json:"severity"`
	Risk        RiskLevel   `json:"risk_level"`
	RiskFactors []string    `json:"risk_factors"`
	Conditions  []Condition `json:"conditions"`
	Decisive    *Criterion  `json:"decisive_criterion,omitempty"`
	Aggravating bool        `json:"aggravating"`
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	out := r
	out.RiskFactors = append([]string{}, r.RiskFactors...)
	out.Conditions = append([]Condition{}, r.Conditions...)
	if r.Decisive != nil {
		c := *r.Decisive
		out.Decisive = &c
	}
	return out
}

// InsufficientDataError lists indicators whose absence could have changed the primary diagnosis.
type InsufficientDataError struct {
	Missing []string
	Rules   []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data to classify: missing %s (rules: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Rules, ", "))
}

// rule positions in the cascade
const (
	ruleEdema = iota + 1
	ruleSevereWasting
	ruleModerateWasting
	ruleStunting
	ruleUnderweight
	ruleOverweight
	ruleNormal
)

type ruleCheck struct {
	name    string
	order   int
	maxTier Tier
	needs   []string
}

// Classify applies the cascade. It fails with *InsufficientDataError when a rule that could
// not be evaluated might have outranked the primary diagnosis.
func Classify(z zscore.Result, f Flags) (Result, error) {
	res, skipped := evaluate(z, f)

	primaryOrder := ruleNormal
	if len(res.Conditions) > 0 && res.Tier > TierNone {
		primaryOrder = primaryCondition(res.Conditions).Rule
	}

	var missing, rules []string
	seen := map[string]bool{}
	for _, rc := range skipped {
		if rc.maxTier > res.Tier || (rc.maxTier == res.Tier && rc.order < primaryOrder) {
			rules = append(rules, rc.name)
			for _, n := range rc.needs {
				if !seen[n] {
					seen[n] = true
					missing = append(missing, n)
				}
			}
		}
	}
	if len(rules) > 0 {
		sort.Strings(missing)
		return Result{}, &InsufficientDataError{Missing: missing, Rules: rules}
	}
	return res, nil
}

// ClassifyAvailable returns the best-effort classification using only computed indicators.
func ClassifyAvailable(z zscore.Result, f Flags) Result {
	res, _ := evaluate(z, f)
	return res
}

func evaluate(z zscore.Result, f Flags) (Result, []ruleCheck) {
	var conditions []Condition
	add := func(d Diagnosis, rule int, c Criterion) {
		conditions = append(conditions, Condition{Diagnosis: d, Tier: d.Tier(), Rule: rule, Criterion: c})
	}

	wastingName, wastingZ, hasWasting := wastingScore(z, f.AgeMonths)
	muac, hasMUAC := 0.0, f.MUACCm != nil
	if hasMUAC {
		muac = *f.MUACCm
	}

	// 1. edema
	if f.Edema != nil && *f.Edema {
		add(SAMEdematous, ruleEdema, Criterion{Source: SourceEdema, Value: 1, Threshold: 1})
	}

	// 2-3. wasting by z-score or MUAC
	switch {
	case hasWasting && wastingZ < SevereZ:
		add(SevereWasting, ruleSevereWasting, Criterion{wastingName, wastingZ, SevereZ})
	case hasMUAC && muac < SevereMUACCm:
		add(SAMNonEdematous, ruleSevereWasting, Criterion{SourceMUAC, muac, SevereMUACCm})
	case hasWasting && wastingZ < ModerateZ:
		add(ModerateWasting, ruleModerateWasting, Criterion{wastingName, wastingZ, ModerateZ})
	case hasMUAC && muac < ModerateMUACCm:
		add(ModerateWasting, ruleModerateWasting, Criterion{SourceMUAC, muac, ModerateMUACCm})
	case hasWasting && wastingZ < MildZ:
		add(MildWasting, ruleModerateWasting, Criterion{wastingName, wastingZ, MildZ})
	}

	// 4. stunting
	hfa, hasHFA := z.Z(growth.HeightForAge)
	if hasHFA {
		if d, threshold, ok := band(hfa, SevereStunting, ModerateStunting, MildStunting); ok {
			add(d, ruleStunting, Criterion{string(growth.HeightForAge), hfa, threshold})
		}
	}

	// 5. underweight
	wfa, hasWFA := z.Z(growth.WeightForAge)
	if hasWFA {
		if d, threshold, ok := band(wfa, SevereUnderweight, ModerateUnderweight, MildUnderweight); ok {
			add(d, ruleUnderweight, Criterion{string(growth.WeightForAge), wfa, threshold})
		}
	}

	// 6. overweight
	if hasWasting && wastingZ > OverweightZ {
		add(Overweight, ruleOverweight, Criterion{wastingName, wastingZ, OverweightZ})
	}

	var skipped []ruleCheck
	if !hasWasting && !hasMUAC {
		skipped = append(skipped, ruleCheck{name: "wasting", order: ruleSevereWasting, maxTier: TierSevere,
			needs: []string{string(growth.WeightForHeight), SourceMUAC}})
	}
	if !hasHFA {
		skipped = append(skipped, ruleCheck{name: "stunting", order: ruleStunting, maxTier: TierSevere,
			needs: []string{string(growth.HeightForAge)}})
	}
	if !hasWFA {
		skipped = append(skipped, ruleCheck{name: "underweight", order: ruleUnderweight, maxTier: TierSevere,
			needs: []string{string(growth.WeightForAge)}})
	}
	if !hasWasting {
		skipped = append(skipped, ruleCheck{name: "overweight", order: ruleOverweight, maxTier: TierModerate,
			needs: []string{string(growth.WeightForHeight)}})
	}

	return assemble(conditions, f), skipped
}

// wastingScore picks weight-for-height, falling back to BMI-for-age after 24 months.
func wastingScore(z zscore.Result, ageMonths int) (string, float64, bool) {
	if v, ok := z.Z(growth.WeightForHeight); ok {
		return string(growth.WeightForHeight), v, true
	}
	if ageMonths > zscore.LengthBoundaryMonths {
		if v, ok := z.Z(growth.BMIForAge); ok {
			return string(growth.BMIForAge), v, true
		}
	}
	return "", 0, false
}

func band(v float64, severe, moderate, mild Diagnosis) (Diagnosis, float64, bool) {
	switch {
	case v < SevereZ:
		return severe, SevereZ, true
	case v < ModerateZ:
		return moderate, ModerateZ, true
	case v < MildZ:
		return mild, MildZ, true
	}
	return "", 0, false
}

func primaryCondition(conditions []Condition) Condition {
	best := conditions[0]
	for _, c := range conditions[1:] {
		if c.Tier > best.Tier || (c.Tier == best.Tier && c.Rule < best.Rule) {
			best = c
		}
	}
	return best
}

func assemble(conditions []Condition, f Flags) Result {
	res := Result{Primary: Normal, Tier: TierNone, Conditions: conditions}
	if res.Conditions == nil {
		res.Conditions = []Condition{}
	}

	var primary *Condition
	if len(conditions) > 0 {
		best := primaryCondition(conditions)
		if best.Tier > TierMild {
			primary = &best
			res.Primary = best.Diagnosis
			res.Tier = best.Tier
			c := best.Criterion
			res.Decisive = &c
		}
	}

	significant := 0
	factors := []string{}
	for _, c := range conditions {
		if c.Tier >= TierModerate {
			significant++
		}
		if primary != nil && c == *primary {
			continue
		}
		factors = append(factors, "concurrent "+strings.ToLower(string(c.Diagnosis)))
	}

	clinical, aggravating := ClinicalFactors(f.Symptoms)
	res.RiskFactors = append(factors, clinical...)
	res.Aggravating = aggravating
	res.Risk = riskFor(res.Tier, significant >= 2, aggravating)
	return res
}

// ClinicalFactors phrases the symptom flags as risk factors and reports whether any of them
// aggravate risk.
func ClinicalFactors(s *models.ClinicalSymptoms) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	var out []string
	aggravating := false
	if s.DiarrheaDays >= PersistentDiarrheaDays {
		out = append(out, fmt.Sprintf("persistent diarrhea (%d days)", s.DiarrheaDays))
		aggravating = true
	}
	if s.FeverDays >= ProlongedFeverDays {
		out = append(out, fmt.Sprintf("prolonged fever (%d days)", s.FeverDays))
		aggravating = true
	}
	if s.Appetite == models.AppetiteVeryPoor {
		out = append(out, "very poor appetite")
		aggravating = true
	}
	if s.VomitingEpisodes >= FrequentVomiting {
		out = append(out, fmt.Sprintf("frequent vomiting (%d episodes/day)", s.VomitingEpisodes))
		aggravating = true
	}
	if len(s.VisibleSigns) > 0 {
		out = append(out, "visible signs: "+strings.Join(s.VisibleSigns, ", "))
	}
	return out, aggravating
}
