// Package nutrition groups the malnutrition screening workers.
package nutrition

import (
	"malnutrition-workers/internal/common/errors"
	"malnutrition-workers/internal/engine/assessment"
	am "malnutrition-workers/internal/workers/nutrition/assess-malnutrition"
	ra "malnutrition-workers/internal/workers/nutrition/record-assessment"
	sma "malnutrition-workers/internal/workers/nutrition/send-malnutrition-alert"
	"malnutrition-workers/pkg/registry"
)

// Catalog describes the service tasks a screening process can bind to.
func Catalog() *registry.ActivityRegistry {
	return &registry.ActivityRegistry{
		Version: assessment.EngineVersion,
		Activities: []registry.Activity{
			{
				ID:          am.TaskType,
				DisplayName: "Assess Malnutrition",
				Description: "Computes WHO z-scores, classifies nutritional status and builds a treatment plan",
				Category:    "nutrition",
				Version:     assessment.EngineVersion,
				TaskType:    am.TaskType,
				Inputs:      []string{"patientId", "measurement"},
				Outputs:     []string{"assessmentId", "patientId", "assessment", "requiresAlert", "partial", "cached"},
				ErrorCodes: []string{
					string(errors.ErrCodeValidationFailed),
					string(errors.ErrCodeInvalidJobPayload),
					string(errors.ErrCodeReferenceNotFound),
					string(errors.ErrCodeAssessmentFailed),
				},
				Timeout: "10s",
				Tags:    []string{"who", "z-score", "cache"},
			},
			{
				ID:          ra.TaskType,
				DisplayName: "Record Assessment",
				Description: "Persists an assessment and refreshes the patient's latest summary",
				Category:    "nutrition",
				Version:     assessment.EngineVersion,
				TaskType:    ra.TaskType,
				Inputs:      []string{"assessmentId", "patientId", "assessment"},
				Outputs:     []string{"recordId", "recordStatus", "recordedAt"},
				ErrorCodes: []string{
					string(errors.ErrCodeValidationFailed),
					string(errors.ErrCodeDuplicateAssessment),
					string(errors.ErrCodeDatabaseConnectionFailed),
					string(errors.ErrCodeDatabaseInsertFailed),
				},
				Timeout: "10s",
				Retries: errors.GetRetryCount(errors.ErrCodeDatabaseInsertFailed),
				Tags:    []string{"postgres", "audit"},
			},
			{
				ID:          sma.TaskType,
				DisplayName: "Send Malnutrition Alert",
				Description: "Notifies clinicians over SNS and SES when an assessment requires an alert",
				Category:    "nutrition",
				Version:     assessment.EngineVersion,
				TaskType:    sma.TaskType,
				Inputs:      []string{"assessmentId", "patientId", "requiresAlert", "assessment", "clinicianEmail"},
				Outputs:     []string{"notificationId", "alertStatus", "alertChannels", "alertFailedChannels", "alertSentAt"},
				ErrorCodes: []string{
					string(errors.ErrCodeValidationFailed),
					string(errors.ErrCodeNotificationSendFailed),
				},
				Timeout: "10s",
				Retries: errors.GetRetryCount(errors.ErrCodeNotificationSendFailed),
				Tags:    []string{"sns", "ses"},
			},
		},
	}
}
