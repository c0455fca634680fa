package assessmalnutrition

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"malnutrition-workers/internal/common/config"
	"malnutrition-workers/internal/common/database"
	"malnutrition-workers/internal/common/errors"
	"malnutrition-workers/internal/common/logger"
	"malnutrition-workers/internal/common/validation"
	"malnutrition-workers/internal/engine/assessment"
	"malnutrition-workers/internal/engine/classify"
	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/engine/treatment"
	"malnutrition-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger { return tl }
func (tl *testLogger) WithError(err error) logger.Logger                      { return tl }
func (tl *testLogger) With(fields map[string]interface{}) logger.Logger       { return tl }

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

func newEngine(t *testing.T) *assessment.Engine {
	t.Helper()
	e, err := assessment.NewDefault()
	require.NoError(t, err)
	return e
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func severeInput() *Input {
	return &Input{
		PatientID: "patient-001",
		Measurement: models.MeasurementInput{
			AgeMonths: 24,
			Sex:       models.SexMale,
			WeightKg:  6.0,
			HeightCm:  75,
		},
	}
}

func healthyInput() *Input {
	return &Input{
		PatientID: "patient-002",
		Measurement: models.MeasurementInput{
			AgeMonths: 12,
			Sex:       models.SexMale,
			WeightKg:  9.65,
			HeightCm:  75.75,
			MUACCm:    models.Float(14.2),
			Edema:     models.Bool(false),
			Symptoms:  &models.ClinicalSymptoms{Appetite: models.AppetiteGood},
		},
	}
}

func createTestJob(t *testing.T, vars interface{}) entities.Job {
	t.Helper()
	var payload string
	switch v := vars.(type) {
	case string:
		payload = v
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		payload = string(data)
	}
	return entities.Job{
		ActivatedJob: &pb.ActivatedJob{
			Key:                12345,
			Type:               TaskType,
			ProcessInstanceKey: 67890,
			BpmnProcessId:      "malnutrition-screening",
			Retries:            3,
			Variables:          payload,
		},
	}
}

func TestHandler_Execute_SevereCaseRaisesAlert(t *testing.T) {
	mr, rdb := newMiniredis(t)
	handler := NewHandler(DefaultConfig(), newEngine(t), rdb, nil, newTestLogger(t))

	output, err := handler.Execute(context.Background(), severeInput())
	require.NoError(t, err)

	assert.NotEmpty(t, output.AssessmentID)
	assert.Equal(t, "patient-001", output.PatientID)
	assert.Equal(t, classify.SevereWasting, output.Assessment.PrimaryDiagnosis)
	assert.Equal(t, classify.RiskHigh, output.Assessment.RiskLevel)
	assert.True(t, output.RequiresAlert)
	assert.False(t, output.Cached)
	assert.NotEmpty(t, output.Assessment.TreatmentPlan.ImmediateActions)

	fp, err := Fingerprint(severeInput().Measurement)
	require.NoError(t, err)
	assert.True(t, mr.Exists(database.AssessmentResultKey(fp)))
	assert.Equal(t, time.Hour, mr.TTL(database.AssessmentResultKey(fp)))
}

func TestHandler_Execute_SecondCallIsCached(t *testing.T) {
	_, rdb := newMiniredis(t)
	handler := NewHandler(DefaultConfig(), newEngine(t), rdb, nil, newTestLogger(t))

	first, err := handler.Execute(context.Background(), severeInput())
	require.NoError(t, err)
	second, err := handler.Execute(context.Background(), severeInput())
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.AssessmentID, second.AssessmentID)
	assert.Equal(t, first.Assessment.ZScores, second.Assessment.ZScores)
	assert.Equal(t, first.Assessment.PrimaryDiagnosis, second.Assessment.PrimaryDiagnosis)
	assert.Equal(t, first.RequiresAlert, second.RequiresAlert)
}

func TestHandler_Execute_HealthyChildNoAlert(t *testing.T) {
	handler := NewHandler(DefaultConfig(), newEngine(t), nil, nil, newTestLogger(t))

	output, err := handler.Execute(context.Background(), healthyInput())
	require.NoError(t, err)

	assert.Equal(t, classify.Normal, output.Assessment.PrimaryDiagnosis)
	assert.False(t, output.RequiresAlert)
	assert.False(t, output.Partial)
}

func TestHandler_Execute_CacheHitFromRedis(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()

	fp, err := Fingerprint(healthyInput().Measurement)
	require.NoError(t, err)
	cached := assessment.Report{
		ZScores:          map[string]float64{"wfh": -3.4},
		PrimaryDiagnosis: classify.SevereWasting,
		RiskLevel:        classify.RiskHigh,
		Confidence:       0.9,
	}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	redisMock.ExpectGet(database.AssessmentResultKey(fp)).SetVal(string(data))

	handler := NewHandler(DefaultConfig(), failingAssessor{t: t}, rdb, nil, newTestLogger(t))
	output, err := handler.Execute(context.Background(), healthyInput())
	require.NoError(t, err)

	assert.True(t, output.Cached)
	assert.Equal(t, classify.SevereWasting, output.Assessment.PrimaryDiagnosis)
	assert.True(t, output.RequiresAlert)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestHandler_Execute_CacheDownStillAssesses(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	handler := NewHandler(DefaultConfig(), newEngine(t), rdb, nil, newTestLogger(t))
	output, err := handler.Execute(context.Background(), severeInput())
	require.NoError(t, err)
	assert.False(t, output.Cached)
	assert.True(t, output.RequiresAlert)
}

func TestHandler_Execute_AlertThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlertMinRiskLevel = classify.RiskLow

	handler := NewHandler(cfg, newEngine(t), nil, nil, newTestLogger(t))
	output, err := handler.Execute(context.Background(), healthyInput())
	require.NoError(t, err)
	assert.True(t, output.RequiresAlert)
}

func TestHandler_Execute_ValidationFailure(t *testing.T) {
	handler := NewHandler(DefaultConfig(), newEngine(t), nil, nil, newTestLogger(t))

	input := severeInput()
	input.Measurement.AgeMonths = 72
	input.Measurement.WeightKg = 0.2

	_, err := handler.Execute(context.Background(), input)
	require.Error(t, err)

	stdErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
	assert.False(t, stdErr.Retryable)

	fields, ok := stdErr.Metadata["validationErrors"].([]validation.ValidationError)
	require.True(t, ok)
	assert.Len(t, fields, 2)
}

func TestHandler_Execute_ReferenceNotFound(t *testing.T) {
	store, err := growth.NewStore([]growth.Point{
		{Indicator: growth.WeightForAge, Sex: models.SexMale, Key: 0, L: 0.3487, M: 3.3464, S: 0.14602},
		{Indicator: growth.WeightForAge, Sex: models.SexMale, Key: 1, L: 0.2297, M: 4.4709, S: 0.13395},
	})
	require.NoError(t, err)
	book, err := treatment.DefaultRuleBook()
	require.NoError(t, err)

	handler := NewHandler(DefaultConfig(), assessment.New(store, book), nil, nil, newTestLogger(t))
	_, err = handler.Execute(context.Background(), healthyInput())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeReferenceNotFound, errors.Normalize(err).Code)
}

func TestHandler_Execute_EngineFailure(t *testing.T) {
	engine := new(MockAssessor)
	engine.On("Assess", mock.Anything, mock.AnythingOfType("models.MeasurementInput")).
		Return(nil, stderrors.New("lms table corrupted"))

	handler := NewHandler(DefaultConfig(), engine, nil, nil, newTestLogger(t))
	_, err := handler.Execute(context.Background(), healthyInput())
	require.Error(t, err)

	stdErr := errors.Normalize(err)
	assert.Equal(t, errors.ErrCodeAssessmentFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "lms table corrupted")
	engine.AssertExpectations(t)
}

func TestHandler_ParseInput(t *testing.T) {
	handler := NewHandler(DefaultConfig(), newEngine(t), nil, nil, newTestLogger(t))

	tests := []struct {
		name       string
		vars       interface{}
		wantCode   errors.ErrorCode
		wantFields []string
	}{
		{
			name: "valid",
			vars: severeInput(),
		},
		{
			name:     "malformed json",
			vars:     `{"patientId":`,
			wantCode: errors.ErrCodeInvalidJobPayload,
		},
		{
			name:       "missing measurement",
			vars:       map[string]interface{}{"patientId": "p-1"},
			wantCode:   errors.ErrCodeValidationFailed,
			wantFields: []string{"measurement"},
		},
		{
			name: "missing required measurement fields",
			vars: map[string]interface{}{
				"patientId":   "p-1",
				"measurement": map[string]interface{}{"age_months": 12, "sex": "male"},
			},
			wantCode:   errors.ErrCodeValidationFailed,
			wantFields: []string{"measurement.weight_kg", "measurement.height_cm"},
		},
		{
			name: "wrong types",
			vars: map[string]interface{}{
				"patientId": "p-1",
				"measurement": map[string]interface{}{
					"age_months": 12.5,
					"sex":        "male",
					"weight_kg":  "nine",
					"height_cm":  75,
				},
			},
			wantCode:   errors.ErrCodeValidationFailed,
			wantFields: []string{"measurement.age_months", "measurement.weight_kg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := handler.parseInput(createTestJob(t, tt.vars))
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "patient-001", input.PatientID)
				assert.Equal(t, 24, input.Measurement.AgeMonths)
				return
			}

			require.Error(t, err)
			stdErr := errors.Normalize(err)
			assert.Equal(t, tt.wantCode, stdErr.Code)
			if len(tt.wantFields) == 0 {
				return
			}
			fields, ok := stdErr.Metadata["validationErrors"].([]validation.ValidationError)
			require.True(t, ok)
			var got []string
			for _, f := range fields {
				got = append(got, f.Field)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(severeInput().Measurement)
	require.NoError(t, err)
	b, err := Fingerprint(severeInput().Measurement)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := severeInput().Measurement
	other.WeightKg = 6.1
	c, err := Fingerprint(other)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Workers: map[string]config.WorkerConfig{
			TaskType: {Enabled: true, Timeout: 5000},
		},
		Assessment: config.AssessmentConfig{CacheTTL: 120, AlertMinRiskLevel: "Medium"},
	}

	got, err := ConfigFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got.Timeout)
	assert.Equal(t, 2*time.Minute, got.CacheTTL)
	assert.Equal(t, classify.RiskMedium, got.AlertMinRiskLevel)

	cfg.Assessment.AlertMinRiskLevel = "Critical"
	_, err = ConfigFrom(cfg)
	assert.Error(t, err)
}

type failingAssessor struct {
	t *testing.T
}

func (f failingAssessor) Assess(context.Context, models.MeasurementInput) (*assessment.Result, error) {
	f.t.Fatal("engine must not run on a cache hit")
	return nil, nil
}

type MockAssessor struct {
	mock.Mock
}

func (m *MockAssessor) Assess(ctx context.Context, in models.MeasurementInput) (*assessment.Result, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*assessment.Result), args.Error(1)
}
