package transport

import (
	"github.com/danielpatrickdp/ree-cathedral/go-controller/internal/env"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region types
// Status is the agent and world summary returned by every RPC.
type Status struct {
	RunID     string
	VersionID string // last committed snapshot, empty without a store
	Step      int
	Done      bool
	Dents     int
	BetaAlpha float64
	Agent     env.Point
	Other     env.Point
	Battery   float64
	Healthy   bool
	Reason    string
}

// StepReply adds the outcome of the last step taken by a Step call.
type StepReply struct {
	Status
	Taken       int
	Action      env.Action
	ActionName  string
	Score       float64
	RealityCost float64
	EthicalCost float64
	DentAdded   bool
	Slept       bool
}

// #endregion types

// #region encoding
func (s Status) fields() map[string]interface{} {
	return map[string]interface{}{
		"run_id":     s.RunID,
		"version_id": s.VersionID,
		"step":       s.Step,
		"done":       s.Done,
		"dents":      s.Dents,
		"beta_alpha": s.BetaAlpha,
		"agent_x":    s.Agent.X,
		"agent_y":    s.Agent.Y,
		"other_x":    s.Other.X,
		"other_y":    s.Other.Y,
		"battery":    s.Battery,
		"healthy":    s.Healthy,
		"reason":     s.Reason,
	}
}

func (s Status) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(s.fields())
}

func (r StepReply) toStruct() (*structpb.Struct, error) {
	f := r.Status.fields()
	f["taken"] = r.Taken
	f["action"] = int(r.Action)
	f["action_name"] = r.ActionName
	f["score"] = r.Score
	f["reality_cost"] = r.RealityCost
	f["ethical_cost"] = r.EthicalCost
	f["dent_added"] = r.DentAdded
	f["slept"] = r.Slept
	return structpb.NewStruct(f)
}

func statusFrom(s *structpb.Struct) Status {
	f := s.GetFields()
	return Status{
		RunID:     f["run_id"].GetStringValue(),
		VersionID: f["version_id"].GetStringValue(),
		Step:      intField(f, "step"),
		Done:      f["done"].GetBoolValue(),
		Dents:     intField(f, "dents"),
		BetaAlpha: f["beta_alpha"].GetNumberValue(),
		Agent:     env.Point{X: intField(f, "agent_x"), Y: intField(f, "agent_y")},
		Other:     env.Point{X: intField(f, "other_x"), Y: intField(f, "other_y")},
		Battery:   f["battery"].GetNumberValue(),
		Healthy:   f["healthy"].GetBoolValue(),
		Reason:    f["reason"].GetStringValue(),
	}
}

func stepReplyFrom(s *structpb.Struct) StepReply {
	f := s.GetFields()
	return StepReply{
		Status:      statusFrom(s),
		Taken:       intField(f, "taken"),
		Action:      env.Action(intField(f, "action")),
		ActionName:  f["action_name"].GetStringValue(),
		Score:       f["score"].GetNumberValue(),
		RealityCost: f["reality_cost"].GetNumberValue(),
		EthicalCost: f["ethical_cost"].GetNumberValue(),
		DentAdded:   f["dent_added"].GetBoolValue(),
		Slept:       f["slept"].GetBoolValue(),
	}
}

func intField(f map[string]*structpb.Value, key string) int {
	return int(f[key].GetNumberValue())
}

// #endregion encoding
