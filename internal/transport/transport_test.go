package transport

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region helpers
func startServer(t *testing.T, cfg config.Config, opts ...ServerOption) *Client {
	t.Helper()
	srv, err := NewServer(cfg, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterAgentServiceServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	c, err := NewClient("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func hazardConfig() config.Config {
	c := config.Default()
	c.World.Size = 1
	c.World.MaxSteps = 4
	c.World.Hazards = []env.Point{{}}
	return c
}

// #endregion helpers

// #region rpc-tests
func TestStepBeforeReset(t *testing.T) {
	c := startServer(t, config.Default())
	_, err := c.Step(context.Background(), 1)
	if status.Code(errors.Unwrap(err)) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
	if _, err := c.Inspect(context.Background()); status.Code(errors.Unwrap(err)) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition from Inspect, got %v", err)
	}
}

func TestResetStepInspect(t *testing.T) {
	c := startServer(t, config.Default())
	ctx := context.Background()

	st, err := c.Reset(ctx, nil)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if st.Step != 0 || st.Done || st.Dents != 0 || st.RunID == "" || !st.Healthy {
		t.Fatalf("unexpected reset status %+v", st)
	}
	if st.Battery != 1 || st.BetaAlpha != 1.5 || st.Other != (env.Point{X: 5, Y: 5}) {
		t.Fatalf("unexpected world after reset %+v", st)
	}

	reply, err := c.Step(ctx, 3)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if reply.Taken != 3 || reply.Step != 3 {
		t.Fatalf("expected 3 steps, got %+v", reply)
	}
	if reply.ActionName != env.ActionName(reply.Action) {
		t.Fatalf("action name mismatch %+v", reply)
	}

	got, err := c.Inspect(ctx)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Step != 3 || got.Agent != reply.Agent || got.RunID != st.RunID {
		t.Fatalf("inspect disagrees with step reply: %+v vs %+v", got, reply.Status)
	}
}

func TestResetSeedIsDeterministic(t *testing.T) {
	a := startServer(t, config.Default())
	b := startServer(t, config.Default())
	ctx := context.Background()
	seed := uint64(42)
	for _, c := range []*Client{a, b} {
		if _, err := c.Reset(ctx, &seed); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}
	ra, err := a.Step(ctx, 15)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	rb, err := b.Step(ctx, 15)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ra.Agent != rb.Agent || ra.Other != rb.Other || ra.Score != rb.Score {
		t.Fatalf("same seed diverged: %+v vs %+v", ra, rb)
	}
}

func TestStepStopsAtEpisodeEnd(t *testing.T) {
	c := startServer(t, hazardConfig())
	ctx := context.Background()
	if _, err := c.Reset(ctx, nil); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	reply, err := c.Step(ctx, 100)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if reply.Taken != 4 || !reply.Done {
		t.Fatalf("expected 4 steps then done, got %+v", reply)
	}
	if !reply.DentAdded || reply.EthicalCost <= 0 {
		t.Fatalf("hazard step should add a dent: %+v", reply)
	}

	_, err = c.Step(ctx, 1)
	if status.Code(errors.Unwrap(err)) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition after done, got %v", err)
	}
}

func TestStepRejectsBadCount(t *testing.T) {
	c := startServer(t, config.Default())
	ctx := context.Background()
	c.Reset(ctx, nil)
	for _, n := range []int{0, -3, maxStepsPerCall + 1} {
		if _, err := c.Step(ctx, n); status.Code(errors.Unwrap(err)) != codes.InvalidArgument {
			t.Fatalf("steps=%d: expected InvalidArgument, got %v", n, err)
		}
	}
}

func TestServerPersistsSnapshotsAndSteps(t *testing.T) {
	store, err := state.NewStore(filepath.Join(t.TempDir(), "ree.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	c := startServer(t, hazardConfig(), WithStore(store))
	ctx := context.Background()
	st, err := c.Reset(ctx, nil)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if st.VersionID == "" {
		t.Fatal("expected an initial snapshot")
	}
	reply, err := c.Step(ctx, 2)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	cur, err := store.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID != reply.VersionID || cur.ParentID != st.VersionID || cur.Step != 2 || len(cur.Dents) != 2 {
		t.Fatalf("unexpected snapshot %+v", cur)
	}

	steps, err := logging.ListSteps(store.DB(), st.RunID, 0)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 2 || steps[1].DentCount != 2 {
		t.Fatalf("expected 2 logged steps, got %+v", steps)
	}
}

func TestFailedStepSnapshotsAndBlocksEpisode(t *testing.T) {
	store, err := state.NewStore(filepath.Join(t.TempDir(), "ree.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	cfg := hazardConfig()
	cfg.Gate.MaxCenterNorm = 1e-9
	c := startServer(t, cfg, WithStore(store))
	ctx := context.Background()
	st, err := c.Reset(ctx, nil)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	_, err = c.Step(ctx, 3)
	if status.Code(errors.Unwrap(err)) != codes.Aborted {
		t.Fatalf("expected Aborted, got %v", err)
	}
	cur, err := store.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID == st.VersionID || cur.ParentID != st.VersionID || cur.Step != 1 {
		t.Fatalf("expected a snapshot of the failed step, got %+v", cur)
	}

	_, err = c.Step(ctx, 1)
	if status.Code(errors.Unwrap(err)) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition after failure, got %v", err)
	}
	if _, err := c.Reset(ctx, nil); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := c.Inspect(ctx); err != nil {
		t.Fatalf("Inspect after reset: %v", err)
	}
}

func TestNewServerValidatesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Planner.Horizon = 2
	if _, err := NewServer(cfg); !errors.Is(err, config.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

// #endregion rpc-tests

// #region mock-client-tests
type mockService struct {
	resp *structpb.Struct
	err  error
	last *structpb.Struct
}

func (m *mockService) Reset(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.last = in
	return m.resp, m.err
}

func (m *mockService) Step(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.last = in
	return m.resp, m.err
}

func (m *mockService) Inspect(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.last = in
	return m.resp, m.err
}

func TestClientWithService(t *testing.T) {
	resp, _ := StepReply{Status: Status{Step: 7, Dents: 2, Agent: env.Point{X: 1, Y: 3}}, Taken: 1, Action: env.ActionLeft, Slept: true}.toStruct()
	m := &mockService{resp: resp}
	c := NewClientWithService(m)
	defer c.Close()

	reply, err := c.Step(context.Background(), 4)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.last.GetFields()["steps"].GetNumberValue() != 4 {
		t.Fatalf("steps not sent: %v", m.last)
	}
	if reply.Step != 7 || reply.Dents != 2 || reply.Agent != (env.Point{X: 1, Y: 3}) || reply.Action != env.ActionLeft || !reply.Slept {
		t.Fatalf("unexpected decoded reply %+v", reply)
	}

	seed := uint64(9)
	if _, err := c.Reset(context.Background(), &seed); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.last.GetFields()["seed"].GetNumberValue() != 9 {
		t.Fatalf("seed not sent: %v", m.last)
	}
}

func TestClientWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	c := NewClientWithService(&mockService{err: boom})
	if _, err := c.Inspect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if _, err := c.Reset(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if _, err := c.Step(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// #endregion mock-client-tests
