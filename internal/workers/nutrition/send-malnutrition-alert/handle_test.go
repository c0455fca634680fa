package sendmalnutritionalert

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"malnutrition-workers/internal/common/logger"
	"malnutrition-workers/internal/common/observability"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/grpc"
)

// fakeGateway records job commands instead of sending them to a broker.
type fakeGateway struct {
	pb.GatewayClient
	completed []*pb.CompleteJobRequest
	failed    []*pb.FailJobRequest
	thrown    []*pb.ThrowErrorRequest
}

func (g *fakeGateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, opts ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	g.completed = append(g.completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *fakeGateway) FailJob(ctx context.Context, in *pb.FailJobRequest, opts ...grpc.CallOption) (*pb.FailJobResponse, error) {
	g.failed = append(g.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *fakeGateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, opts ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	g.thrown = append(g.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

type fakeJobClient struct {
	gateway *fakeGateway
}

func noRetry(context.Context, error) bool { return false }

func (c fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

func alertJob(variables string) entities.Job {
	return entities.Job{
		ActivatedJob: &pb.ActivatedJob{
			Key:                4242,
			Type:               TaskType,
			ProcessInstanceKey: 67890,
			BpmnProcessId:      "malnutrition-screening",
			Retries:            3,
			Variables:          variables,
		},
	}
}

// jobCounts returns jobs.processed totals by status for this worker's task type.
func jobCounts(t *testing.T, reader sdkmetric.Reader) (map[string]int64, uint64) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if m.Name != "jobs.processed" {
					continue
				}
				for _, dp := range data.DataPoints {
					taskType, _ := dp.Attributes.Value(attribute.Key("task_type"))
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					if taskType.AsString() == TaskType {
						counts[status.AsString()] += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				if m.Name != "jobs.duration" {
					continue
				}
				for _, dp := range data.DataPoints {
					taskType, _ := dp.Attributes.Value(attribute.Key("task_type"))
					if taskType.AsString() == TaskType {
						durations += dp.Count
					}
				}
			}
		}
	}
	return counts, durations
}

func TestHandler_Handle_RecordsJobMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	obs := observability.NewWithReader("malnutrition-workers", reader)
	handler := NewHandler(createTestConfig(), okSNS(), okSES(), obs, logger.NewTestLogger(t))
	gateway := &fakeGateway{}
	client := fakeJobClient{gateway: gateway}

	input := createTestInput()
	input.RequiresAlert = false
	data, err := json.Marshal(input)
	require.NoError(t, err)

	handler.Handle(client, alertJob(string(data)))
	handler.Handle(client, alertJob(`{"assessmentId":`))

	require.Len(t, gateway.completed, 1)
	assert.Equal(t, int64(4242), gateway.completed[0].JobKey)
	assert.Contains(t, gateway.completed[0].Variables, StatusSkipped)
	require.Len(t, gateway.thrown, 1)
	assert.Empty(t, gateway.failed)

	counts, durations := jobCounts(t, reader)
	assert.Equal(t, map[string]int64{"completed": 1, "failed": 1}, counts)
	assert.Equal(t, uint64(2), durations)
}

func TestHandler_Handle_RetryableFailureCounted(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	obs := observability.NewWithReader("malnutrition-workers", reader)

	cfg := createTestConfig()
	cfg.SESEnabled = false
	snsMock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, stderrors.New("throttled")
		},
	}
	handler := NewHandler(cfg, snsMock, nil, obs, logger.NewTestLogger(t))
	gateway := &fakeGateway{}

	data, err := json.Marshal(createTestInput())
	require.NoError(t, err)
	handler.Handle(fakeJobClient{gateway: gateway}, alertJob(string(data)))

	require.Len(t, gateway.failed, 1)
	assert.Equal(t, int32(2), gateway.failed[0].Retries)
	assert.Empty(t, gateway.completed)

	counts, _ := jobCounts(t, reader)
	assert.Equal(t, map[string]int64{"failed": 1}, counts)
}
