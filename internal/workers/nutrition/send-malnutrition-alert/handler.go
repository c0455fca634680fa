package sendmalnutritionalert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	awsutil "malnutrition-workers/internal/common/aws"
	"malnutrition-workers/internal/common/errors"
	"malnutrition-workers/internal/common/logger"
	"malnutrition-workers/internal/common/metrics"
	"malnutrition-workers/internal/common/observability"
	"malnutrition-workers/internal/common/validation"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-malnutrition-alert"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config       *Config
	snsClient    SNSService
	sesClient    SESService
	errorHandler *errors.ErrorHandler
	obs          *observability.Observability
	logger       logger.Logger
	now          func() time.Time
}

// NewHandler wires the worker. A nil client disables its channel; obs may be nil.
func NewHandler(config *Config, snsClient SNSService, sesClient SESService, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		snsClient:    snsClient,
		sesClient:    sesClient,
		errorHandler: errors.NewErrorHandler(log),
		obs:          obs,
		logger:       log,
		now:          time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	done := metrics.JobStarted(TaskType)

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	err := json.Unmarshal([]byte(job.Variables), &input)
	if err != nil {
		err = errors.NewInvalidJobPayloadError(err)
	} else {
		var output *Output
		if output, err = h.execute(ctx, &input); err == nil {
			h.completeJob(ctx, client, job, output)
			h.obs.RecordJobProcessed(ctx, TaskType, "completed")
			h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
			done("")
			return
		}
	}

	stdErr := errors.Normalize(err)
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
	done(string(stdErr.Code))
}

func (h *Handler) snsActive() bool {
	return h.config.SNSEnabled && h.snsClient != nil && h.config.TopicARN != ""
}

func (h *Handler) sesActive(to string) bool {
	return h.config.SESEnabled && h.sesClient != nil && to != ""
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if !input.RequiresAlert {
		metrics.AlertsSent.WithLabelValues(StatusSkipped).Inc()
		return &Output{Status: StatusSkipped}, nil
	}

	to := strings.TrimSpace(input.ClinicianEmail)
	if to != "" && !validation.ValidateEmail(to) {
		vr := validation.NewResult()
		vr.Add("clinicianEmail", validation.CodeInvalidFormat, "invalid email address %q", to)
		return nil, errors.NewValidationFailedError(vr.Err().Error(), vr.Errors)
	}

	if !h.snsActive() && !h.sesActive(to) {
		h.logger.Warn("alert required but no notification channel is enabled", map[string]interface{}{
			"assessmentId": input.AssessmentID,
			"patientId":    input.PatientID,
		})
		metrics.AlertsSent.WithLabelValues(StatusDisabled).Inc()
		return &Output{Status: StatusDisabled}, nil
	}

	body, err := renderBody(input)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	subj := subject(input)

	output := &Output{NotificationID: uuid.New().String()}
	var lastErr *errors.StandardError

	if h.snsActive() {
		if err := h.publish(ctx, input, subj, body); err != nil {
			h.logger.Error("sns publish failed", map[string]interface{}{
				"error":        err,
				"assessmentId": input.AssessmentID,
			})
			output.FailedChannels = append(output.FailedChannels, ChannelSNS)
			lastErr = errors.NewNotificationSendFailedError(ChannelSNS, err)
		} else {
			output.Channels = append(output.Channels, ChannelSNS)
		}
	}

	if h.sesActive(to) {
		if _, err := h.sesClient.SendEmail(ctx, awsutil.TextEmail(h.config.FromEmail, to, subj, body)); err != nil {
			h.logger.Error("email send failed", map[string]interface{}{
				"error":        err,
				"assessmentId": input.AssessmentID,
			})
			output.FailedChannels = append(output.FailedChannels, ChannelSES)
			lastErr = errors.NewNotificationSendFailedError(ChannelSES, err)
		} else {
			output.Channels = append(output.Channels, ChannelSES)
		}
	}

	// Retry only when nothing went out, so a partial success is never repeated.
	if len(output.Channels) == 0 {
		metrics.AlertsSent.WithLabelValues("failed").Inc()
		return nil, lastErr
	}

	output.Status = StatusSent
	output.SentAt = h.now().UTC().Format(time.RFC3339)
	metrics.AlertsSent.WithLabelValues(StatusSent).Inc()

	h.logger.Info("malnutrition alert sent", map[string]interface{}{
		"notificationId": output.NotificationID,
		"assessmentId":   input.AssessmentID,
		"channels":       output.Channels,
		"failed":         output.FailedChannels,
	})
	return output, nil
}

func (h *Handler) publish(ctx context.Context, input *Input, subj, body string) error {
	_, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(h.config.TopicARN),
		Subject:  aws.String(subj),
		Message:  aws.String(body),
		MessageAttributes: awsutil.StringAttributes(map[string]string{
			"primaryDiagnosis": string(input.Assessment.PrimaryDiagnosis),
			"riskLevel":        string(input.Assessment.RiskLevel),
			"patientId":        input.PatientID,
			"assessmentId":     input.AssessmentID,
		}),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", h.config.TopicARN, err)
	}
	return nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
