package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationFailed, 0},
		{ErrCodeReferenceNotFound, 0},
		{ErrCodeInvalidJobPayload, 0},
		{ErrCodeAssessmentFailed, 0},
		{ErrCodeDuplicateAssessment, 0},
		{ErrCodeDatabaseInsertFailed, 3},
		{ErrCodeNotificationSendFailed, 3},
		{"SOMETHING_ELSE", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, GetRetryCount(tt.code))
		})
	}
}

func TestConvertToBPMNError_ForwardsMetadata(t *testing.T) {
	fields := []map[string]string{{"field": "weight_kg", "code": "MINIMUM_VIOLATION"}}
	stdErr := NewValidationFailedError("validation failed: weight_kg: too low", fields)

	bpmnErr := ConvertToBPMNError(stdErr)

	assert.Equal(t, "VALIDATION_FAILED", bpmnErr.Code)
	assert.Equal(t, 0, bpmnErr.Retries)
	assert.False(t, bpmnErr.Retryable)

	vars := bpmnErr.ToErrorVariables()
	assert.Equal(t, "VALIDATION_FAILED", vars["errorCode"])
	assert.Equal(t, "VALIDATION_FAILED", vars["originalErrorCode"])
	assert.Equal(t, fields, vars["validationErrors"])
	assert.Contains(t, vars, "timestamp")
}

func TestConvertToBPMNError_RetryableCodes(t *testing.T) {
	bpmnErr := ConvertToBPMNError(NewDatabaseInsertFailedError(stderrors.New("connection reset")))
	assert.Equal(t, 3, bpmnErr.Retries)
	assert.True(t, bpmnErr.Retryable)

	unknown := &StandardError{Code: "CUSTOM", Message: "custom", Retryable: true}
	assert.Equal(t, "CUSTOM", ConvertToBPMNError(unknown).Code)
	assert.Equal(t, 0, ConvertToBPMNError(unknown).Retries)
}

func TestNormalize(t *testing.T) {
	dup := NewDuplicateAssessmentError("a-1")
	wrapped := fmt.Errorf("record: %w", dup)

	got := Normalize(wrapped)
	require.Same(t, dup, got)
	assert.Contains(t, got.Details, "a-1")

	internal := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, internal.Code)
	assert.Equal(t, "boom", internal.Details)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidationFailed))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidJobPayload))
	assert.Equal(t, "ASSESSMENT", GetErrorCategory(ErrCodeReferenceNotFound))
	assert.Equal(t, "ASSESSMENT", GetErrorCategory(ErrCodeDuplicateAssessment))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseInsertFailed))
	assert.Equal(t, "NOTIFICATION", GetErrorCategory(ErrCodeNotificationSendFailed))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
