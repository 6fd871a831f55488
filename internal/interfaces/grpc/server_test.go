package grpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

type call struct {
	method, code string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeRecorder) RecordGRPCRequest(method, code string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method, code})
}

func (f *fakeRecorder) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func startServer(t *testing.T, rec Recorder) (*Client, *grpc.ClientConn) {
	t.Helper()
	s, err := NewServer("127.0.0.1:0", WithLogger(logging.NewNopLogger()), WithMetrics(rec), WithReflection(true))
	require.NoError(t, err)

	svc := fragmentation.NewService(logging.NewNopLogger(), fragmentation.WithWorkers(2))
	NewFragmenterService(svc, nil).Register(s)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	t.Cleanup(func() {
		require.NoError(t, s.Stop(context.Background()))
		assert.NoError(t, <-done)
	})

	conn, err := grpc.Dial(s.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn), conn
}

func TestFragmenter_Fragment(t *testing.T) {
	rec := &fakeRecorder{}
	client, _ := startServer(t, rec)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Fragment(ctx, &types.FragmentRequest{
		Molecules: []types.MoleculeInput{
			{Title: "butanol", SMILES: "CCCCO", WBO: []float64{1, 1, 1, 1}},
			{Title: "no weights", SMILES: "CCCCC"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Provenance["job_id"])
	require.Len(t, resp.Molecules, 1)
	assert.Equal(t, "butanol", resp.Molecules[0].Title)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, "FRAG_001", resp.Skipped[0].Code)

	assert.Contains(t, rec.snapshot(), call{"Fragment", codes.OK.String()})
}

func TestFragmenter_Cut(t *testing.T) {
	client, _ := startServer(t, nil)
	resp, err := client.Cut(context.Background(), &types.CutRequest{Title: "b", SMILES: "CCCCO", WBO: []float64{1, 1, 1, 1}})
	require.NoError(t, err)
	assert.Equal(t, "b", resp.Title)
	assert.NotEmpty(t, resp.Fragments)
	assert.Greater(t, resp.Pieces, 0)
}

func TestFragmenter_ErrorCodes(t *testing.T) {
	rec := &fakeRecorder{}
	client, _ := startServer(t, rec)
	ctx := context.Background()

	_, err := client.Fragment(ctx, &types.FragmentRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "FRAG_007")

	_, err = client.Cut(ctx, &types.CutRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Cut(ctx, &types.CutRequest{SMILES: "C1CC"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetRun(ctx, "job-1")
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = client.ListRuns(ctx, 5)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = client.Lineage(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Lineage(ctx, "CCO")
	assert.Equal(t, codes.Unavailable, status.Code(err))

	assert.Contains(t, rec.snapshot(), call{"GetRun", codes.Unavailable.String()})
}

func TestFragmenter_Health(t *testing.T) {
	_, conn := startServer(t, nil)
	hc := healthpb.NewHealthClient(conn)

	resp, err := hc.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestFragmenter_RequestID(t *testing.T) {
	client, _ := startServer(t, nil)
	req := &types.CutRequest{SMILES: "CCCCO", WBO: []float64{1, 1, 1, 1}}

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-42")
	_, err := client.Cut(ctx, req, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get("x-request-id"))

	header = nil
	_, err = client.Cut(context.Background(), req, grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get("x-request-id"), 1)
	assert.NotEmpty(t, header.Get("x-request-id")[0])
}

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))

	st := status.Convert(toStatus(errors.New(errors.ErrCodeFragRunNotFound, "run not found").WithDetail("job-9")))
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "FRAG_005: run not found (job-9)", st.Message())

	st = status.Convert(toStatus(errors.Wrap(assert.AnError, errors.ErrCodeDatabaseError, "select failed")))
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "select failed")

	already := status.Error(codes.Aborted, "x")
	assert.Equal(t, already, toStatus(already))
}

func TestStructRoundTrip(t *testing.T) {
	in := types.CutRequest{Title: "t", SMILES: "CCO", WBO: []float64{1.5, 0.9}, Threshold: 1.2}
	s, err := toStruct(in)
	require.NoError(t, err)
	assert.Equal(t, "CCO", s.GetFields()["smiles"].GetStringValue())

	var out types.CutRequest
	require.NoError(t, fromStruct(s, &out))
	assert.Equal(t, in, out)

	bad, err := structpb.NewStruct(map[string]interface{}{"wbo": "not a list"})
	require.NoError(t, err)
	err = fromStruct(bad, &out)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestSplitMethodName(t *testing.T) {
	svc, m := splitMethodName(methodFragment)
	assert.Equal(t, ServiceName, svc)
	assert.Equal(t, "Fragment", m)
	svc, m = splitMethodName("bare")
	assert.Equal(t, "unknown", svc)
	assert.Equal(t, "bare", m)
}
