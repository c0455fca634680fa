package assessment

import (
	"encoding/json"
	"time"

	"malnutrition-workers/internal/engine/classify"
	"malnutrition-workers/internal/engine/confidence"
	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/engine/treatment"
	"malnutrition-workers/internal/engine/zscore"
	"malnutrition-workers/internal/models"
)

// Result is an immutable assessment. Accessors return copies.
type Result struct {
	input          models.MeasurementInput
	scores         zscore.Result
	classification classify.Result
	confidence     float64
	penalties      []confidence.Penalty
	plan           treatment.Plan
	partial        bool
	reviewRequired bool
	generatedAt    time.Time
	version        string
}

func (r *Result) Input() models.MeasurementInput       { return r.input.Clone() }
func (r *Result) ZScores() zscore.Result               { return r.scores.Clone() }
func (r *Result) Classification() classify.Result      { return r.classification.Clone() }
func (r *Result) Confidence() float64                  { return r.confidence }
func (r *Result) ConfidenceLevel() string              { return confidence.Level(r.confidence) }
func (r *Result) Plan() treatment.Plan                 { return r.plan.Clone() }
func (r *Result) Partial() bool                        { return r.partial }
func (r *Result) ReviewRequired() bool                 { return r.reviewRequired }
func (r *Result) GeneratedAt() time.Time               { return r.generatedAt }
func (r *Result) EngineVersion() string                { return r.version }
func (r *Result) MissingIndicators() []string          { return r.scores.MissingNames() }
func (r *Result) PrimaryDiagnosis() classify.Diagnosis { return r.classification.Primary }
func (r *Result) RiskLevel() classify.RiskLevel        { return r.classification.Risk }

// ConfidencePenalties explains how the confidence score was reached.
func (r *Result) ConfidencePenalties() []confidence.Penalty {
	return append([]confidence.Penalty{}, r.penalties...)
}

// Report is the JSON shape consumed outside the engine.
type Report struct {
	ZScores             map[string]float64      `json:"z_scores"`
	PrimaryDiagnosis    classify.Diagnosis      `json:"primary_diagnosis"`
	Severity            classify.Tier           `json:"severity"`
	RiskLevel           classify.RiskLevel      `json:"risk_level"`
	Confidence          float64                 `json:"confidence"`
	ConfidenceLevel     string                  `json:"confidence_level"`
	ConfidencePenalties []confidence.Penalty    `json:"confidence_penalties"`
	RiskFactors         []string                `json:"risk_factors"`
	TreatmentPlan       treatment.Plan          `json:"treatment_plan"`
	Partial             bool                    `json:"partial"`
	ReviewRequired      bool                    `json:"review_required"`
	MissingIndicators   []string                `json:"missing_indicators"`
	ZScoreDetails       map[string]ScoreDetail  `json:"z_score_details"`
	GeneratedAt         time.Time               `json:"generated_at"`
	EngineVersion       string                  `json:"engine_version"`
	Input               models.MeasurementInput `json:"input"`
}

// ScoreDetail is the audit record behind one reported z-score.
type ScoreDetail struct {
	Table            growth.Indicator `json:"table"`
	Axis             growth.Axis      `json:"axis"`
	AxisValue        float64          `json:"axis_value"`
	Measurement      float64          `json:"measurement"`
	Z                float64          `json:"z"`
	Lower            growth.Point     `json:"lower"`
	Upper            growth.Point     `json:"upper"`
	ExtremeCorrected bool             `json:"extreme_corrected"`
	Implausible      bool             `json:"implausible"`
}

// Report builds the serializable view of the result.
func (r *Result) Report() Report {
	details := make(map[string]ScoreDetail, len(r.scores.Scores))
	for name, s := range r.scores.Scores {
		details[string(name)] = ScoreDetail{
			Table:            s.Table,
			Axis:             s.Axis,
			AxisValue:        s.AxisValue,
			Measurement:      s.Measurement,
			Z:                s.Z,
			Lower:            s.Lower,
			Upper:            s.Upper,
			ExtremeCorrected: s.Corrected,
			Implausible:      s.Implausible,
		}
	}
	c := r.classification.Clone()
	return Report{
		ZScores:             r.scores.Rounded(),
		PrimaryDiagnosis:    c.Primary,
		Severity:            c.Tier,
		RiskLevel:           c.Risk,
		Confidence:          r.confidence,
		ConfidenceLevel:     r.ConfidenceLevel(),
		ConfidencePenalties: r.ConfidencePenalties(),
		RiskFactors:         c.RiskFactors,
		TreatmentPlan:       r.Plan(),
		Partial:             r.partial,
		ReviewRequired:      r.reviewRequired,
		MissingIndicators:   r.MissingIndicators(),
		ZScoreDetails:       details,
		GeneratedAt:         r.generatedAt,
		EngineVersion:       r.version,
		Input:               r.Input(),
	}
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Report())
}

// IsSAM reports a severe acute malnutrition case.
func (rep Report) IsSAM() bool {
	return rep.PrimaryDiagnosis.IsSAM()
}

// RequiresAlert reports whether the case meets the alert threshold.
func (rep Report) RequiresAlert(minRisk classify.RiskLevel) bool {
	return rep.IsSAM() || rep.RiskLevel.Rank() >= minRisk.Rank()
}
