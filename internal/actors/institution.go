package actors

import "context"

// Institution is a body that spans markets, such as a guild or a church.
// It keeps a seat in each market it belongs to but does not trade yet.
type Institution struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	Markets  []uint64 `json:"markets"`
	Property Property `json:"property"`
}

func (i *Institution) ActorID() ID     { return i.ID }
func (i *Institution) ActorKind() Kind { return KindInstitution }

// RunMarketDay posts Finished straight away.
func (i *Institution) RunMarketDay(ctx context.Context, port Port, env *DayEnv) error {
	return port.Send(Message{Kind: MsgFinished, From: i.ID})
}

// State is a polity governing one or more markets. Like an institution it
// holds a seat but does not trade yet.
type State struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	Markets  []uint64 `json:"markets"`
	Property Property `json:"property"`
}

func (s *State) ActorID() ID     { return s.ID }
func (s *State) ActorKind() Kind { return KindState }

// RunMarketDay posts Finished straight away.
func (s *State) RunMarketDay(ctx context.Context, port Port, env *DayEnv) error {
	return port.Send(Message{Kind: MsgFinished, From: s.ID})
}
