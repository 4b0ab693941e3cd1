package aimsg

import "fmt"

// Context is what a Handler sees of the worker it runs on.
type Context interface {
	Player() PlayerID
	// Reply queues a request for the game thread. It never blocks.
	Reply(Request)
}

// Handler is the AI side of the command protocol. Adding a Message kind adds
// a method here, so every handler has to deal with it.
type Handler interface {
	FirstActivities(ctx Context, m FirstActivities) error
	PhaseFinished(ctx Context, m PhaseFinished) error
	CityChanged(ctx Context, m CityChanged) error
}

// Dispatch routes m to the matching Handler method.
func Dispatch(ctx Context, h Handler, m Message) error {
	switch m := m.(type) {
	case FirstActivities:
		return h.FirstActivities(ctx, m)
	case PhaseFinished:
		return h.PhaseFinished(ctx, m)
	case CityChanged:
		return h.CityChanged(ctx, m)
	case Exit:
		return ErrExitDispatched
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}
}

// HandlerFuncs adapts plain functions to Handler. Nil fields accept the
// command and do nothing.
type HandlerFuncs struct {
	OnFirstActivities func(ctx Context, m FirstActivities) error
	OnPhaseFinished   func(ctx Context, m PhaseFinished) error
	OnCityChanged     func(ctx Context, m CityChanged) error
}

func (f HandlerFuncs) FirstActivities(ctx Context, m FirstActivities) error {
	if f.OnFirstActivities == nil {
		return nil
	}
	return f.OnFirstActivities(ctx, m)
}

func (f HandlerFuncs) PhaseFinished(ctx Context, m PhaseFinished) error {
	if f.OnPhaseFinished == nil {
		return nil
	}
	return f.OnPhaseFinished(ctx, m)
}

func (f HandlerFuncs) CityChanged(ctx Context, m CityChanged) error {
	if f.OnCityChanged == nil {
		return nil
	}
	return f.OnCityChanged(ctx, m)
}
