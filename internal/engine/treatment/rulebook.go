package treatment

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"malnutrition-workers/internal/engine/classify"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

type template struct {
	ImmediateActions     []string       `yaml:"immediate_actions"`
	Nutrition            nutritionRule  `yaml:"nutrition"`
	MedicalInterventions []string       `yaml:"medical_interventions"`
	Monitoring           monitoringRule `yaml:"monitoring"`
	FamilyEducation      []string       `yaml:"family_education"`
	SuccessCriteria      []string       `yaml:"success_criteria"`
	DischargeCriteria    []string       `yaml:"discharge_criteria"`
}

type nutritionRule struct {
	Approach         string   `yaml:"approach"`
	FeedingFrequency string   `yaml:"feeding_frequency"`
	EnergyTarget     string   `yaml:"energy_target"`
	Directives       []string `yaml:"directives"`
}

type monitoringRule struct {
	Frequency  string     `yaml:"frequency"`
	Phases     []Phase    `yaml:"phases"`
	FollowUps  []FollowUp `yaml:"follow_ups"`
	Directives []string   `yaml:"directives"`
}

type planRule struct {
	Diagnosis        classify.Diagnosis `yaml:"diagnosis"`
	Tier             string             `yaml:"tier"`
	Template         string             `yaml:"template"`
	ImmediateActions []string           `yaml:"immediate_actions"`
	FamilyEducation  []string           `yaml:"family_education"`
}

type ageEducation struct {
	MaxAgeMonths int      `yaml:"max_age_months"`
	Items        []string `yaml:"items"`
}

type conditionalRules struct {
	SecondOpinion        string         `yaml:"second_opinion"`
	Breastfeeding        []string       `yaml:"breastfeeding"`
	Zinc                 string         `yaml:"zinc"`
	Electrolytes         string         `yaml:"electrolytes"`
	VitaminAInfant       string         `yaml:"vitamin_a_infant"`
	VitaminA             string         `yaml:"vitamin_a"`
	Deworming            string         `yaml:"deworming"`
	SocialSupport        string         `yaml:"social_support"`
	RiskFactorFollowUp   string         `yaml:"risk_factor_follow_up"`
	TargetWeight         string         `yaml:"target_weight"`
	RUTFRation           string         `yaml:"rutf_ration"`
	GeneralEducation     []string       `yaml:"general_education"`
	AgeEducation         []ageEducation `yaml:"age_education"`
	EmergencySigns       []string       `yaml:"emergency_signs"`
	InfantEmergencySigns []string       `yaml:"infant_emergency_signs"`
	ChildEmergencySigns  []string       `yaml:"child_emergency_signs"`
}

type ruleFile struct {
	Templates   map[string]template `yaml:"templates"`
	Plans       []planRule          `yaml:"plans"`
	Conditional conditionalRules    `yaml:"conditional"`
}

type planKey struct {
	diagnosis classify.Diagnosis
	tier      classify.Tier
}

type entry struct {
	base  template
	extra planRule
}

// RuleBook is the parsed, validated rule set. It is read-only after loading.
type RuleBook struct {
	plans       map[planKey]entry
	conditional conditionalRules
}

// ParseRuleBook decodes and validates a YAML rule book. Every diagnosis that can be
// primary must have exactly one plan.
func ParseRuleBook(data []byte) (*RuleBook, error) {
	var file ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode rule book: %w", err)
	}

	book := &RuleBook{plans: make(map[planKey]entry), conditional: file.Conditional}
	for i, p := range file.Plans {
		if !p.Diagnosis.Valid() {
			return nil, fmt.Errorf("plan %d: unknown diagnosis %q", i, p.Diagnosis)
		}
		tier, err := classify.ParseTier(p.Tier)
		if err != nil {
			return nil, fmt.Errorf("plan %d: %w", i, err)
		}
		if tier != p.Diagnosis.Tier() {
			return nil, fmt.Errorf("plan %d: %s is tier %s, not %s", i, p.Diagnosis, p.Diagnosis.Tier(), tier)
		}
		tpl, ok := file.Templates[p.Template]
		if !ok {
			return nil, fmt.Errorf("plan %d: unknown template %q", i, p.Template)
		}
		key := planKey{p.Diagnosis, tier}
		if _, dup := book.plans[key]; dup {
			return nil, fmt.Errorf("plan %d: duplicate rule for %s/%s", i, p.Diagnosis, tier)
		}
		book.plans[key] = entry{base: tpl, extra: p}
	}

	var missing []string
	for _, d := range classify.Diagnoses() {
		if d.Tier() == classify.TierMild {
			continue
		}
		if _, ok := book.plans[planKey{d, d.Tier()}]; !ok {
			missing = append(missing, string(d))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("rule book has no plan for %v", missing)
	}
	if len(file.Conditional.AgeEducation) == 0 {
		return nil, errors.New("rule book has no age education bands")
	}
	return book, nil
}

var (
	defaultOnce sync.Once
	defaultBook *RuleBook
	defaultErr  error
)

// DefaultRuleBook returns the embedded rule book, parsed on first use.
func DefaultRuleBook() (*RuleBook, error) {
	defaultOnce.Do(func() {
		defaultBook, defaultErr = ParseRuleBook(defaultRules)
	})
	return defaultBook, defaultErr
}
