package assessment

import (
	"strings"

	"malnutrition-workers/internal/common/validation"
	"malnutrition-workers/internal/models"
)

// Clinically plausible bounds. Values outside them are rejected, never clamped.
const (
	MinAgeMonths = 0
	MaxAgeMonths = 60
	MinWeightKg  = 1.0
	MaxWeightKg  = 50.0
	MinHeightCm  = 30.0
	MaxHeightCm  = 150.0
	MinMUACCm    = 5.0
	MaxMUACCm    = 30.0

	MaxSymptomDays    = 365
	MaxVomitingPerDay = 50
	MinHouseholdSize  = 1
	MaxHouseholdSize  = 20
)

// Validate checks every field and reports all violations at once.
func Validate(in models.MeasurementInput) *validation.ValidationResult {
	vr := validation.NewResult()

	vr.IntRange("age_months", in.AgeMonths, MinAgeMonths, MaxAgeMonths)
	if _, ok := models.ParseSex(string(in.Sex)); !ok {
		if strings.TrimSpace(string(in.Sex)) == "" {
			vr.Add("sex", validation.CodeRequired, "required field missing")
		} else {
			vr.Add("sex", validation.CodeInvalidEnum, "value must be one of [male female], got %q", in.Sex)
		}
	}
	vr.FloatRange("weight_kg", in.WeightKg, MinWeightKg, MaxWeightKg)
	vr.FloatRange("height_cm", in.HeightCm, MinHeightCm, MaxHeightCm)
	if in.MUACCm != nil {
		vr.FloatRange("muac_cm", *in.MUACCm, MinMUACCm, MaxMUACCm)
	}

	if s := in.Symptoms; s != nil {
		if !s.Appetite.Valid() {
			vr.Add("symptoms.appetite", validation.CodeInvalidEnum, "value must be one of [good poor very_poor], got %q", s.Appetite)
		}
		vr.IntRange("symptoms.diarrhea_days", s.DiarrheaDays, 0, MaxSymptomDays)
		vr.IntRange("symptoms.fever_days", s.FeverDays, 0, MaxSymptomDays)
		vr.IntRange("symptoms.vomiting_episodes", s.VomitingEpisodes, 0, MaxVomitingPerDay)
		for i, sign := range s.VisibleSigns {
			if strings.TrimSpace(sign) == "" {
				vr.Add("symptoms.visible_signs", validation.CodeInvalidFormat, "entry %d is empty", i)
			}
		}
	}

	if h := in.Household; h != nil && h.HouseholdSize != 0 {
		vr.IntRange("household.household_size", h.HouseholdSize, MinHouseholdSize, MaxHouseholdSize)
	}
	return vr
}
