// Package aimsg defines what travels between the game thread and a player's
// AI worker.
//
// Commands (Message) flow from the game thread to the worker. Requests flow
// back from the worker and are applied by the game thread when it next
// refreshes. Both are closed sets: the marker methods are unexported, so
// only this package can add a kind, and Handler has one method per kind.
package aimsg

import (
	"errors"
	"fmt"
	"time"
)

// PlayerID identifies a player slot in the game.
type PlayerID int

// Kind tags a command.
type Kind int

const (
	KindFirstActivities Kind = iota + 1
	KindPhaseFinished
	KindCityChanged
	// KindExit stops the worker. It is never dispatched to a Handler.
	KindExit
)

func (k Kind) String() string {
	switch k {
	case KindFirstActivities:
		return "first_activities"
	case KindPhaseFinished:
		return "phase_finished"
	case KindCityChanged:
		return "city_changed"
	case KindExit:
		return "exit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrExitDispatched = errors.New("aimsg: exit message is not dispatchable")
	ErrUnknownMessage = errors.New("aimsg: unknown message")
	ErrUnknownRequest = errors.New("aimsg: unknown request")
)

// Message is a command for a player's AI worker.
type Message interface {
	Kind() Kind
	message()
}

// Releaser is implemented by payloads that hold resources. Release runs once
// when a command is discarded or after it has been handled.
type Releaser interface {
	Release()
}

// FirstActivities asks the AI to plan the start of a turn. Data is usually a
// snapshot of what the AI may look at.
type FirstActivities struct {
	Turn int
	Data any
}

// PhaseFinished tells the AI the player's phase of Turn is over.
type PhaseFinished struct {
	Turn  int
	Phase int
	Data  any
}

// CityChanged tells the AI that one of its cities changed.
type CityChanged struct {
	CityID int
	Data   any
}

// Exit is the shutdown sentinel. It carries no payload.
type Exit struct{}

func (FirstActivities) Kind() Kind { return KindFirstActivities }
func (PhaseFinished) Kind() Kind   { return KindPhaseFinished }
func (CityChanged) Kind() Kind     { return KindCityChanged }
func (Exit) Kind() Kind            { return KindExit }

func (FirstActivities) message() {}
func (PhaseFinished) message()   {}
func (CityChanged) message()     {}
func (Exit) message()            {}

// Payload returns the data attached to m, or nil.
func Payload(m Message) any {
	switch m := m.(type) {
	case FirstActivities:
		return m.Data
	case PhaseFinished:
		return m.Data
	case CityChanged:
		return m.Data
	default:
		return nil
	}
}

// Release frees m's payload if it is a Releaser.
func Release(m Message) {
	if r, ok := Payload(m).(Releaser); ok {
		r.Release()
	}
}

// Envelope is the unit a queue carries: a message plus bookkeeping set by
// the sender.
type Envelope[M any] struct {
	Seq    uint64
	Player PlayerID
	Msg    M
	SentAt time.Time
}

// ReleaseEnvelope is the destructor for command queues.
func ReleaseEnvelope(env *Envelope[Message]) {
	if env != nil && env.Msg != nil {
		Release(env.Msg)
	}
}
