package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/agent"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/config"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/eval"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/logging"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/lspace"
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/state"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxStepsPerCall bounds a single Step request.
const maxStepsPerCall = 10000

// #region server
// Server hosts one agent in one world. Calls are serialized.
//
// Reset accepts an optional numeric "seed" overriding world.seed.
// Step accepts an optional "steps" (default 1) and stops early when the
// episode ends. Inspect takes no fields.
type Server struct {
	mu     sync.Mutex
	config config.Config
	store  *state.Store // optional
	eval   *eval.EvalHarness

	world     *env.GridWorld
	agent     *agent.Agent
	runID     string
	versionID string
	failed    error // set when a step fails mid-episode; cleared by Reset
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithStore persists a snapshot after every Step call and logs each step.
func WithStore(s *state.Store) ServerOption {
	return func(srv *Server) { srv.store = s }
}

// NewServer validates cfg and returns a server with no episode running.
func NewServer(cfg config.Config, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{config: cfg, eval: eval.NewEvalHarness(cfg.EvalConfig())}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Reset starts a fresh episode.
func (s *Server) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.config
	if v, ok := in.GetFields()["seed"]; ok {
		seed := v.GetNumberValue()
		if seed < 0 {
			return nil, status.Error(codes.InvalidArgument, "seed must be non-negative")
		}
		cfg.World.Seed = uint64(seed)
	}
	world, err := cfg.NewWorld()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "world: %v", err)
	}
	a, err := cfg.NewAgent(env.SensorDim)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "agent: %v", err)
	}
	a.Reset()

	s.world, s.agent = world, a
	s.runID = uuid.NewString()
	s.versionID = ""
	s.failed = nil
	if err := s.commit(); err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return s.status().toStruct()
}

// Step advances the episode.
func (s *Server) Step(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agent == nil {
		return nil, status.Error(codes.FailedPrecondition, agent.ErrNotReset.Error())
	}
	n := 1
	if v, ok := in.GetFields()["steps"]; ok {
		n = int(v.GetNumberValue())
	}
	if n < 1 || n > maxStepsPerCall {
		return nil, status.Errorf(codes.InvalidArgument, "steps must be in [1, %d]", maxStepsPerCall)
	}
	if s.failed != nil {
		return nil, status.Errorf(codes.FailedPrecondition, "episode aborted (%v); call Reset", s.failed)
	}
	if s.world.Done() {
		return nil, status.Error(codes.FailedPrecondition, "episode is done; call Reset")
	}

	var reply StepReply
	for i := 0; i < n && !s.world.Done(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, status.FromContextError(err).Err()
		}
		res, err := s.agent.Step(s.world)
		if err != nil {
			code := codes.Internal
			if errors.Is(err, agent.ErrDentRejected) {
				code = codes.Aborted
			}
			return nil, status.Errorf(code, "%v", s.abort(err))
		}
		if err := s.logStep(res); err != nil {
			return nil, status.Errorf(codes.Internal, "%v", s.abort(err))
		}
		reply.Taken++
		reply.Action = res.Info.Action
		reply.ActionName = env.ActionName(res.Info.Action)
		reply.Score = res.Info.Score
		reply.RealityCost = res.RealityCost
		reply.EthicalCost = res.EthicalCost
		reply.DentAdded = res.DentAdded
		reply.Slept = res.Sleep != nil
	}
	if err := s.commit(); err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	reply.Status = s.status()
	return reply.toStruct()
}

// Inspect reports the current status without stepping.
func (s *Server) Inspect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.agent == nil {
		return nil, status.Error(codes.FailedPrecondition, agent.ErrNotReset.Error())
	}
	return s.status().toStruct()
}

// #endregion server

// #region helpers
func (s *Server) status() Status {
	latent, _ := s.agent.State()
	health := s.eval.Run(latent, s.agent.Residue())
	return Status{
		RunID:     s.runID,
		VersionID: s.versionID,
		Step:      s.agent.StepCount(),
		Done:      s.world.Done(),
		Dents:     s.agent.Residue().Count(),
		BetaAlpha: s.agent.Stack().Alpha(lspace.Beta),
		Agent:     s.world.Agent(),
		Other:     s.world.Other(),
		Battery:   s.world.Battery(),
		Healthy:   health.Passed,
		Reason:    health.Reason,
	}
}

func (s *Server) commit() error {
	if s.store == nil {
		return nil
	}
	snap, err := state.Capture(s.agent, s.versionID, s.runID)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := s.store.CommitSnapshot(snap); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.versionID = snap.VersionID
	return nil
}

// abort marks the episode failed and snapshots the agent as it now stands,
// since a failed step may already have moved it.
func (s *Server) abort(cause error) error {
	s.failed = cause
	if err := s.commit(); err != nil {
		return fmt.Errorf("%w (snapshot after failure: %v)", cause, err)
	}
	return cause
}

func (s *Server) logStep(res agent.StepResult) error {
	if s.store == nil {
		return nil
	}
	entry, err := logging.EntryFromResult(s.runID, s.agent, res)
	if err != nil {
		return err
	}
	return logging.LogStep(s.store.DB(), entry)
}

// #endregion helpers
