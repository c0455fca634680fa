package assessmalnutrition

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"malnutrition-workers/internal/common/database"
	"malnutrition-workers/internal/common/errors"
	"malnutrition-workers/internal/common/logger"
	"malnutrition-workers/internal/common/metrics"
	"malnutrition-workers/internal/common/observability"
	"malnutrition-workers/internal/common/validation"
	"malnutrition-workers/internal/engine/assessment"
	"malnutrition-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "assess-malnutrition"
)

// Assessor is the engine facade.
type Assessor interface {
	Assess(ctx context.Context, in models.MeasurementInput) (*assessment.Result, error)
}

type Handler struct {
	config       *Config
	engine       Assessor
	redis        *redis.Client
	obs          *observability.Observability
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

// NewHandler wires the worker. rdb and obs may be nil.
func NewHandler(config *Config, engine Assessor, rdb *redis.Client, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		engine:       engine,
		redis:        rdb,
		obs:          obs,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	done := metrics.JobStarted(TaskType)
	start := time.Now()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err == nil {
		var output *Output
		if output, err = h.execute(ctx, input); err == nil {
			h.completeJob(ctx, client, job, output)
			h.obs.RecordJobProcessed(ctx, TaskType, "completed")
			h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
			done("")
			return
		}
	}

	stdErr := errors.Normalize(err)
	metrics.RecordAssessmentFailure(string(stdErr.Code))
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
	done(string(stdErr.Code))
}

// parseInput schema-checks the raw variables before decoding them.
func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &raw); err != nil {
		return nil, errors.NewInvalidJobPayloadError(err)
	}

	vr, err := validation.ValidateDocument(inputSchema, raw)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	if !vr.Valid {
		return nil, errors.NewValidationFailedError(vr.Err().Error(), vr.Errors)
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, errors.NewInvalidJobPayloadError(err)
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	key, err := Fingerprint(input.Measurement)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	key = database.AssessmentResultKey(key)

	report, cached := h.cachedReport(ctx, key)
	if !cached {
		result, err := h.engine.Assess(ctx, input.Measurement)
		if err != nil {
			return nil, classifyError(err)
		}
		report = result.Report()
		h.storeReport(ctx, key, report)
	} else {
		metrics.AssessmentCacheHits.Inc()
	}

	metrics.RecordAssessment(string(report.PrimaryDiagnosis), string(report.RiskLevel), report.Partial)
	h.obs.RecordAssessment(ctx, string(report.PrimaryDiagnosis), string(report.RiskLevel), report.Confidence, report.Partial)

	output := &Output{
		AssessmentID:  uuid.New().String(),
		PatientID:     input.PatientID,
		Assessment:    report,
		RequiresAlert: report.RequiresAlert(h.config.AlertMinRiskLevel),
		Partial:       report.Partial,
		Cached:        cached,
	}

	h.logger.Info("assessment completed", map[string]interface{}{
		"assessmentId":     output.AssessmentID,
		"patientId":        input.PatientID,
		"primaryDiagnosis": report.PrimaryDiagnosis,
		"riskLevel":        report.RiskLevel,
		"confidence":       report.Confidence,
		"partial":          report.Partial,
		"requiresAlert":    output.RequiresAlert,
		"cached":           cached,
	})
	return output, nil
}

func classifyError(err error) *errors.StandardError {
	var verr *validation.Error
	switch {
	case stderrors.As(err, &verr):
		return errors.NewValidationFailedError(verr.Error(), verr.Errors)
	case stderrors.Is(err, assessment.ErrReferenceNotFound):
		return errors.NewReferenceNotFoundError(err)
	default:
		return errors.NewAssessmentFailedError(err)
	}
}

// cachedReport is best effort: any cache failure reads as a miss.
func (h *Handler) cachedReport(ctx context.Context, key string) (assessment.Report, bool) {
	var report assessment.Report
	if h.redis == nil || h.config.CacheTTL <= 0 {
		return report, false
	}

	val, err := h.redis.Get(ctx, key).Result()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			h.logger.Warn("assessment cache read failed", map[string]interface{}{"key": key, "error": err})
		}
		return report, false
	}
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		h.logger.Warn("discarding unreadable cached assessment", map[string]interface{}{"key": key, "error": err})
		return assessment.Report{}, false
	}
	return report, true
}

func (h *Handler) storeReport(ctx context.Context, key string, report assessment.Report) {
	if h.redis == nil || h.config.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := h.redis.Set(ctx, key, data, h.config.CacheTTL).Err(); err != nil {
		h.logger.Warn("assessment cache write failed", map[string]interface{}{"key": key, "error": err})
	}
}

// Fingerprint identifies a measurement for caching. Equal measurements give equal keys.
func Fingerprint(m models.MeasurementInput) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("fingerprint measurement: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
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
