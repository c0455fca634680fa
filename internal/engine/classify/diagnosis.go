package classify

import (
	"fmt"
	"strings"
)

// Diagnosis is the closed set of nutritional diagnoses.
type Diagnosis string

const (
	Normal              Diagnosis = "Normal"
	MildWasting         Diagnosis = "Mild Wasting"
	ModerateWasting     Diagnosis = "Moderate Wasting"
	SevereWasting       Diagnosis = "Severe Wasting"
	MildStunting        Diagnosis = "Mild Stunting"
	ModerateStunting    Diagnosis = "Moderate Stunting"
	SevereStunting      Diagnosis = "Severe Stunting"
	MildUnderweight     Diagnosis = "Mild Underweight"
	ModerateUnderweight Diagnosis = "Moderate Underweight"
	SevereUnderweight   Diagnosis = "Severe Underweight"
	Overweight          Diagnosis = "Overweight"
	SAMNonEdematous     Diagnosis = "Severe Acute Malnutrition (non-edematous)"
	SAMEdematous        Diagnosis = "Severe Acute Malnutrition (edematous)"
)

var diagnosisTiers = map[Diagnosis]Tier{
	Normal:              TierNone,
	MildWasting:         TierMild,
	ModerateWasting:     TierModerate,
	SevereWasting:       TierSevere,
	MildStunting:        TierMild,
	ModerateStunting:    TierModerate,
	SevereStunting:      TierSevere,
	MildUnderweight:     TierMild,
	ModerateUnderweight: TierModerate,
	SevereUnderweight:   TierSevere,
	Overweight:          TierModerate,
	SAMNonEdematous:     TierSevere,
	SAMEdematous:        TierSevere,
}

// Diagnoses lists every diagnosis in cascade order.
func Diagnoses() []Diagnosis {
	return []Diagnosis{
		SAMEdematous, SevereWasting, SAMNonEdematous, ModerateWasting, MildWasting,
		SevereStunting, ModerateStunting, MildStunting,
		SevereUnderweight, ModerateUnderweight, MildUnderweight,
		Overweight, Normal,
	}
}

func (d Diagnosis) Valid() bool {
	_, ok := diagnosisTiers[d]
	return ok
}

// Tier is the fixed severity tier of the diagnosis.
func (d Diagnosis) Tier() Tier {
	return diagnosisTiers[d]
}

// IsSAM reports either form of severe acute malnutrition, including severe wasting by z-score.
func (d Diagnosis) IsSAM() bool {
	return d == SAMEdematous || d == SAMNonEdematous || d == SevereWasting
}

// Tier orders severity: None < Mild < Moderate < Severe.
type Tier int

const (
	TierNone Tier = iota
	TierMild
	TierModerate
	TierSevere
)

var tierNames = [...]string{"None", "Mild", "Moderate", "Severe"}

func (t Tier) String() string {
	if t < TierNone || t > TierSevere {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

func (t Tier) MarshalText() ([]byte, error) {
	if t < TierNone || t > TierSevere {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseTier(raw string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(name, strings.TrimSpace(raw)) {
			return Tier(i), nil
		}
	}
	return TierNone, fmt.Errorf("unknown tier %q", raw)
}

// RiskLevel is the overall clinical risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Rank orders risk levels; unknown values rank below Low.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

func ParseRiskLevel(raw string) (RiskLevel, error) {
	for _, r := range []RiskLevel{RiskLow, RiskMedium, RiskHigh} {
		if strings.EqualFold(string(r), strings.TrimSpace(raw)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown risk level %q", raw)
}
