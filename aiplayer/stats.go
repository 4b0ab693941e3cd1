package aiplayer

import "github.com/brensch/threadai/aimsg"

// Stats is a point-in-time view of a controller.
type Stats struct {
	Player          aimsg.PlayerID
	Name            string
	State           State
	Session         string
	Starts          uint64
	Submitted       uint64
	Dispatched      uint64
	Failed          uint64
	Queued          int
	HighWater       int
	PendingRequests int
	AppliedRequests uint64
}

func (c *Controller) Stats() Stats {
	st := Stats{
		Player:          c.player,
		Name:            c.name,
		State:           c.State(),
		Starts:          c.starts.Load(),
		Submitted:       c.submitted.Load(),
		Dispatched:      c.dispatched.Load(),
		Failed:          c.failed.Load(),
		AppliedRequests: c.applied.Load(),
	}
	if s := c.session.Load(); s != nil {
		st.Session = s.String()
	}
	if st.State == StateDestroyed {
		return st
	}
	q := c.cmds.Stats()
	st.Queued = q.Queued
	st.HighWater = q.HighWater
	st.PendingRequests = c.reqs.Len()
	return st
}
