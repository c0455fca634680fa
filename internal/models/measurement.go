package models

import "strings"

// Sex is the reference population a child is compared against.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
)

// ParseSex normalizes the accepted spellings (male/female/m/f, any case).
func ParseSex(raw string) (Sex, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m":
		return SexMale, true
	case "female", "f":
		return SexFemale, true
	default:
		return "", false
	}
}

func (s Sex) Valid() bool {
	return s == SexMale || s == SexFemale
}

type Appetite string

const (
	AppetiteGood     Appetite = "good"
	AppetitePoor     Appetite = "poor"
	AppetiteVeryPoor Appetite = "very_poor"
)

func (a Appetite) Valid() bool {
	switch a {
	case "", AppetiteGood, AppetitePoor, AppetiteVeryPoor:
		return true
	}
	return false
}

// ClinicalSymptoms are the optional bedside observations taken with the measurements.
type ClinicalSymptoms struct {
	Appetite         Appetite `json:"appetite,omitempty"`
	DiarrheaDays     int      `json:"diarrhea_days"`
	FeverDays        int      `json:"fever_days"`
	VomitingEpisodes int      `json:"vomiting_episodes"`
	VisibleSigns     []string `json:"visible_signs,omitempty"`
}

// Household carries the socioeconomic context used for family education only.
type Household struct {
	CashTransferBeneficiary bool `json:"cash_transfer_beneficiary"`
	HouseholdSize           int  `json:"household_size,omitempty"`
}

// MeasurementInput is one anthropometric snapshot of a child aged 0-60 months.
type MeasurementInput struct {
	AgeMonths int               `json:"age_months"`
	Sex       Sex               `json:"sex"`
	WeightKg  float64           `json:"weight_kg"`
	HeightCm  float64           `json:"height_cm"`
	MUACCm    *float64          `json:"muac_cm,omitempty"`
	Edema     *bool             `json:"edema,omitempty"`
	Symptoms  *ClinicalSymptoms `json:"symptoms,omitempty"`
	Household *Household        `json:"household,omitempty"`
}

// Clone returns a deep copy so that callers cannot mutate a stored snapshot.
func (m MeasurementInput) Clone() MeasurementInput {
	out := m
	if m.MUACCm != nil {
		v := *m.MUACCm
		out.MUACCm = &v
	}
	if m.Edema != nil {
		v := *m.Edema
		out.Edema = &v
	}
	if m.Symptoms != nil {
		s := *m.Symptoms
		if m.Symptoms.VisibleSigns != nil {
			s.VisibleSigns = append([]string(nil), m.Symptoms.VisibleSigns...)
		}
		out.Symptoms = &s
	}
	if m.Household != nil {
		h := *m.Household
		out.Household = &h
	}
	return out
}

// EdemaPresent reports false when the flag was not recorded.
func (m MeasurementInput) EdemaPresent() bool {
	return m.Edema != nil && *m.Edema
}

// BMI returns weight / height(m)^2, or 0 when height is unusable.
func (m MeasurementInput) BMI() float64 {
	if m.HeightCm <= 0 {
		return 0
	}
	h := m.HeightCm / 100
	return m.WeightKg / (h * h)
}

func Float(v float64) *float64 { return &v }

func Bool(v bool) *bool { return &v }
