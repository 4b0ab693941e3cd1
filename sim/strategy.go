package sim

import (
	"fmt"
	"time"

	"github.com/brensch/threadai/aimsg"
)

// Strategy is a greedy AI: for every owned city it asks for the most
// valuable tile that is not improved yet.
type Strategy struct {
	Think time.Duration
}

var _ aimsg.Handler = Strategy{}

func (s Strategy) FirstActivities(ctx aimsg.Context, m aimsg.FirstActivities) error {
	snap, ok := m.Data.(*Snapshot)
	if !ok {
		return fmt.Errorf("first activities turn %d: %w", m.Turn, ErrNoSnapshot)
	}
	s.think()
	for i := range snap.Cities {
		s.plan(ctx, &snap.Cities[i])
	}
	return nil
}

func (s Strategy) PhaseFinished(ctx aimsg.Context, m aimsg.PhaseFinished) error {
	ctx.Reply(aimsg.TurnDone{Turn: m.Turn})
	return nil
}

func (s Strategy) CityChanged(ctx aimsg.Context, m aimsg.CityChanged) error {
	snap, ok := m.Data.(*Snapshot)
	if !ok {
		return fmt.Errorf("city %d changed: %w", m.CityID, ErrNoSnapshot)
	}
	s.think()
	for i := range snap.Cities {
		if snap.Cities[i].ID == m.CityID {
			s.plan(ctx, &snap.Cities[i])
		}
	}
	return nil
}

func (s Strategy) plan(ctx aimsg.Context, c *City) {
	if c.Owner != ctx.Player() {
		return
	}
	if task, ok := BestTask(c); ok {
		ctx.Reply(aimsg.WorkerTask{CityID: c.ID, Task: task})
	}
}

func (s Strategy) think() {
	if s.Think > 0 {
		time.Sleep(s.Think)
	}
}

// BestTask picks the highest value unimproved tile. Ties go to the lowest
// tile index.
func BestTask(c *City) (aimsg.Task, bool) {
	best := -1
	for i, t := range c.Tiles {
		if t.Improved {
			continue
		}
		if best < 0 || t.Value > c.Tiles[best].Value {
			best = i
		}
	}
	if best < 0 {
		return aimsg.Task{}, false
	}
	t := c.Tiles[best]
	return aimsg.Task{Tile: best, Activity: t.Terrain.Improvement(), Want: t.Value}, true
}
