package assessmalnutrition

import (
	"malnutrition-workers/internal/engine/assessment"
	"malnutrition-workers/internal/models"
)

type Input struct {
	PatientID   string                  `json:"patientId"`
	Measurement models.MeasurementInput `json:"measurement"`
}

type Output struct {
	AssessmentID  string            `json:"assessmentId"`
	PatientID     string            `json:"patientId"`
	Assessment    assessment.Report `json:"assessment"`
	RequiresAlert bool              `json:"requiresAlert"`
	Partial       bool              `json:"partial"`
	Cached        bool              `json:"cached"`
}

// inputSchema guards the shape of the job variables. Clinical bounds are enforced by the
// engine, which reports every violation at once.
var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"patientId", "measurement"},
	"properties": map[string]interface{}{
		"patientId": map[string]interface{}{"type": "string", "minLength": 1},
		"measurement": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"age_months", "sex", "weight_kg", "height_cm"},
			"properties": map[string]interface{}{
				"age_months": map[string]interface{}{"type": "integer"},
				"sex":        map[string]interface{}{"type": "string"},
				"weight_kg":  map[string]interface{}{"type": "number"},
				"height_cm":  map[string]interface{}{"type": "number"},
				"muac_cm":    map[string]interface{}{"type": "number"},
				"edema":      map[string]interface{}{"type": "boolean"},
				"symptoms": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"appetite":          map[string]interface{}{"type": "string"},
						"diarrhea_days":     map[string]interface{}{"type": "integer"},
						"fever_days":        map[string]interface{}{"type": "integer"},
						"vomiting_episodes": map[string]interface{}{"type": "integer"},
						"visible_signs": map[string]interface{}{
							"type":  "array",
							"items": map[string]interface{}{"type": "string"},
						},
					},
				},
				"household": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"cash_transfer_beneficiary": map[string]interface{}{"type": "boolean"},
						"household_size":            map[string]interface{}{"type": "integer"},
					},
				},
			},
		},
	},
}
