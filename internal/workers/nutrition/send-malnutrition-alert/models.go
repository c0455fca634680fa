package sendmalnutritionalert

import "malnutrition-workers/internal/engine/assessment"

const (
	StatusSent     = "sent"
	StatusSkipped  = "skipped"
	StatusDisabled = "disabled"

	ChannelSNS = "sns"
	ChannelSES = "ses"
)

type Input struct {
	AssessmentID   string            `json:"assessmentId"`
	PatientID      string            `json:"patientId"`
	RequiresAlert  bool              `json:"requiresAlert"`
	Assessment     assessment.Report `json:"assessment"`
	ClinicianEmail string            `json:"clinicianEmail,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId,omitempty"`
	Status         string   `json:"alertStatus"`
	Channels       []string `json:"alertChannels,omitempty"`
	FailedChannels []string `json:"alertFailedChannels,omitempty"`
	SentAt         string   `json:"alertSentAt,omitempty"`
}
