package recordassessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"malnutrition-workers/internal/common/database"
	"malnutrition-workers/internal/common/errors"
	"malnutrition-workers/internal/common/logger"
	"malnutrition-workers/internal/common/metrics"
	"malnutrition-workers/internal/common/observability"
	"malnutrition-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "record-assessment"

	StatusRecorded = "recorded"
)

type Handler struct {
	config       *Config
	db           *sql.DB
	redis        *redis.Client
	obs          *observability.Observability
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

// NewHandler wires the worker. rdb and obs may be nil.
func NewHandler(config *Config, db *sql.DB, rdb *redis.Client, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		redis:        rdb,
		obs:          obs,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
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
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "failed")
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
	done(string(stdErr.Code))
}

func validateInput(input *Input) error {
	vr := validation.NewResult()
	if _, err := uuid.Parse(input.AssessmentID); err != nil {
		vr.Add("assessmentId", validation.CodeInvalidFormat, "must be a UUID, got %q", input.AssessmentID)
	}
	if strings.TrimSpace(input.PatientID) == "" {
		vr.Add("patientId", validation.CodeRequired, "required field missing")
	}
	if input.Assessment.PrimaryDiagnosis == "" {
		vr.Add("assessment.primary_diagnosis", validation.CodeRequired, "required field missing")
	}
	if input.Assessment.RiskLevel == "" {
		vr.Add("assessment.risk_level", validation.CodeRequired, "required field missing")
	}
	if vr.Valid {
		return nil
	}
	return errors.NewValidationFailedError(vr.Err().Error(), vr.Errors)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var exists bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM malnutrition_assessments WHERE id = $1
		)`, input.AssessmentID).Scan(&exists)
	if err != nil {
		return nil, errors.NewDatabaseConnectionFailedError(fmt.Errorf("duplicate check: %w", err))
	}
	if exists {
		return nil, errors.NewDuplicateAssessmentError(input.AssessmentID)
	}

	report := input.Assessment
	createdAt := h.now().UTC()
	assessedAt := report.GeneratedAt
	if assessedAt.IsZero() {
		assessedAt = createdAt
	}

	zScoresJSON, err := json.Marshal(report.ZScores)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	resultJSON, err := json.Marshal(report)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO malnutrition_assessments (
			id, patient_id, primary_diagnosis, severity, risk_level, confidence,
			partial, review_required, z_scores, result, engine_version, assessed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		input.AssessmentID,
		input.PatientID,
		string(report.PrimaryDiagnosis),
		report.Severity.String(),
		string(report.RiskLevel),
		report.Confidence,
		report.Partial,
		report.ReviewRequired,
		zScoresJSON,
		resultJSON,
		report.EngineVersion,
		assessedAt,
		createdAt,
	)
	if err != nil {
		return nil, errors.NewDatabaseInsertFailedError(err)
	}

	h.writeAudit(ctx, input, createdAt)
	h.storeLatest(ctx, input, assessedAt)

	h.logger.Info("assessment recorded", map[string]interface{}{
		"assessmentId":     input.AssessmentID,
		"patientId":        input.PatientID,
		"primaryDiagnosis": report.PrimaryDiagnosis,
		"riskLevel":        report.RiskLevel,
	})

	return &Output{
		RecordID:  input.AssessmentID,
		Status:    StatusRecorded,
		CreatedAt: createdAt.Format(time.RFC3339),
	}, nil
}

// writeAudit is non-critical: failures are logged only.
func (h *Handler) writeAudit(ctx context.Context, input *Input, createdAt time.Time) {
	details, err := json.Marshal(map[string]interface{}{
		"patientId":        input.PatientID,
		"primaryDiagnosis": input.Assessment.PrimaryDiagnosis,
		"riskLevel":        input.Assessment.RiskLevel,
		"reviewRequired":   input.Assessment.ReviewRequired,
	})
	if err != nil {
		details = []byte("{}")
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		"assessment_recorded",
		"malnutrition_assessment",
		input.AssessmentID,
		details,
		createdAt,
	)
	if err != nil {
		h.logger.Warn("audit log insert failed", map[string]interface{}{
			"error":        err,
			"assessmentId": input.AssessmentID,
		})
	}
}

func (h *Handler) storeLatest(ctx context.Context, input *Input, assessedAt time.Time) {
	if h.redis == nil {
		return
	}
	key := database.LatestAssessmentKey(input.PatientID)
	summary := LatestSummary{
		AssessmentID:     input.AssessmentID,
		PrimaryDiagnosis: string(input.Assessment.PrimaryDiagnosis),
		RiskLevel:        string(input.Assessment.RiskLevel),
		Confidence:       strconv.FormatFloat(input.Assessment.Confidence, 'f', 2, 64),
		AssessedAt:       assessedAt.UTC().Format(time.RFC3339),
	}

	_, err := h.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, summary)
		if h.config.LatestTTL > 0 {
			pipe.Expire(ctx, key, h.config.LatestTTL)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("latest assessment cache write failed", map[string]interface{}{
			"error":     err,
			"patientId": input.PatientID,
		})
	}
}

// Latest returns the cached summary of a patient's most recent assessment. ok is false
// when nothing is cached.
func (h *Handler) Latest(ctx context.Context, patientID string) (summary LatestSummary, ok bool, err error) {
	if h.redis == nil {
		return summary, false, fmt.Errorf("latest summary: redis not configured")
	}
	if err := h.redis.HGetAll(ctx, database.LatestAssessmentKey(patientID)).Scan(&summary); err != nil {
		return summary, false, err
	}
	return summary, summary.AssessmentID != "", nil
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
