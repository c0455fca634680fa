package recordassessment

import "malnutrition-workers/internal/engine/assessment"

// Input is the output of assess-malnutrition as it sits in the process variables.
type Input struct {
	AssessmentID string            `json:"assessmentId"`
	PatientID    string            `json:"patientId"`
	Assessment   assessment.Report `json:"assessment"`
}

type Output struct {
	RecordID  string `json:"recordId"`
	Status    string `json:"recordStatus"`
	CreatedAt string `json:"recordedAt"`
}

// LatestSummary is the per-patient snapshot kept in redis for quick lookups.
type LatestSummary struct {
	AssessmentID     string `redis:"assessment_id"`
	PrimaryDiagnosis string `redis:"primary_diagnosis"`
	RiskLevel        string `redis:"risk_level"`
	Confidence       string `redis:"confidence"`
	AssessedAt       string `redis:"assessed_at"`
}
