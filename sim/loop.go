package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brensch/threadai/aimsg"
	"github.com/brensch/threadai/aiplayer"
	"github.com/brensch/threadai/genlist"
	"github.com/brensch/threadai/thread"
)

// TurnReport summarizes one played turn.
type TurnReport struct {
	Turn      int
	Running   int
	Toggles   int
	Transfers int
	Applied   int
	Discarded int
	TimedOut  bool
	Took      time.Duration
}

// Summary totals a whole run.
type Summary struct {
	Turns     int
	Toggles   int
	Transfers int
	Applied   int
	Discarded int
	Improved  int
	TimedOut  int
}

// Loop plays the game thread's side: it toggles AI control, moves cities
// between players, sends commands and applies what the workers ask for.
type Loop struct {
	world *World
	reg   *aiplayer.Registry
	cfg   Config
	rng   *rand.Rand
	log   *slog.Logger
	order *genlist.List[aimsg.PlayerID]

	aiDisabled bool

	// OnTurn, if set, is called on the game thread after every turn.
	OnTurn func(TurnReport)
}

func NewLoop(world *World, reg *aiplayer.Registry, cfg Config, rng *rand.Rand, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = time.Second
	}
	order := genlist.New[aimsg.PlayerID](nil)
	for _, p := range world.Players {
		order.Append(p)
	}
	return &Loop{
		world: world,
		reg:   reg,
		cfg:   cfg,
		rng:   rng,
		log:   logger.With("component", "sim"),
		order: order,
	}
}

// Run allocates an AI per player, gives every AI control and plays
// cfg.Turns turns. Workers are left allocated; the caller shuts the
// registry down.
//
// A runtime without condition variables cannot host workers. That is
// reported once and the game is played with the AI disabled.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	strategy := Strategy{Think: l.cfg.Think}
	for _, p := range l.world.Players {
		if _, ok := l.reg.Get(p); ok {
			continue
		}
		if _, err := l.reg.Alloc(p, strategy); err != nil {
			if errors.Is(err, thread.ErrNoCondSupport) {
				l.log.Warn("threaded ai disabled", "err", err)
				l.aiDisabled = true
				break
			}
			return sum, fmt.Errorf("alloc ai for player %d: %w", p, err)
		}
		if err := l.reg.GainsControl(p); err != nil {
			return sum, fmt.Errorf("start ai for player %d: %w", p, err)
		}
	}

	for range l.cfg.Turns {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		rep, err := l.turn(ctx)
		if err != nil {
			return sum, err
		}
		sum.Turns++
		sum.Toggles += rep.Toggles
		sum.Transfers += rep.Transfers
		sum.Applied += rep.Applied
		sum.Discarded += rep.Discarded
		if rep.TimedOut {
			sum.TimedOut++
		}
		if l.OnTurn != nil {
			l.OnTurn(rep)
		}
	}
	// Pick up anything that arrived after the last turn's wait.
	l.reg.Refresh(l.world)
	sum.Applied = l.world.Applied()
	sum.Discarded = l.world.Discarded()
	sum.Improved = l.world.Improved()
	return sum, nil
}

// AIDisabled reports whether Run found that workers cannot run.
func (l *Loop) AIDisabled() bool { return l.aiDisabled }

func (l *Loop) turn(ctx context.Context) (TurnReport, error) {
	started := time.Now()
	turn := l.world.Turn
	rep := TurnReport{Turn: turn}
	applied, discarded := l.world.Applied(), l.world.Discarded()

	if l.aiDisabled {
		if moved, err := l.maybeTransfer(); err != nil {
			return rep, err
		} else if moved {
			rep.Transfers++
		}
		l.world.Advance()
		rep.Took = time.Since(started)
		return rep, nil
	}

	l.order.Shuffle(l.rng)
	for _, p := range l.order.All() {
		toggled, err := l.maybeToggle(p)
		if err != nil {
			return rep, err
		}
		if toggled {
			rep.Toggles++
		}
	}

	if moved, err := l.maybeTransfer(); err != nil {
		return rep, err
	} else if moved {
		rep.Transfers++
	}

	var waiting []aimsg.PlayerID
	for _, p := range l.order.All() {
		snap := l.world.Snapshot()
		err := l.reg.Submit(p, aimsg.FirstActivities{Turn: turn, Data: snap})
		switch {
		case err == nil:
			waiting = append(waiting, p)
		case errors.Is(err, aiplayer.ErrNotRunning):
			snap.Release()
		default:
			snap.Release()
			return rep, err
		}
	}
	rep.Running = len(waiting)
	l.reg.Broadcast(aimsg.PhaseFinished{Turn: turn})

	timedOut, err := l.await(ctx, turn, waiting)
	if err != nil {
		return rep, err
	}
	rep.TimedOut = timedOut
	l.world.Advance()

	rep.Applied = l.world.Applied() - applied
	rep.Discarded = l.world.Discarded() - discarded
	rep.Took = time.Since(started)
	l.log.Debug("turn played",
		"turn", turn,
		"running", rep.Running,
		"applied", rep.Applied,
		"discarded", rep.Discarded,
		"took", rep.Took)
	return rep, nil
}

func (l *Loop) maybeToggle(p aimsg.PlayerID) (bool, error) {
	if l.cfg.ToggleChance <= 0 || l.rng.Float64() >= l.cfg.ToggleChance {
		return false, nil
	}
	c, ok := l.reg.Get(p)
	if !ok {
		return false, fmt.Errorf("toggle player %d: %w", p, aiplayer.ErrUnknownPlayer)
	}
	if c.Running() {
		return true, l.reg.LosesControl(p)
	}
	return true, l.reg.GainsControl(p)
}

// maybeTransfer gives a random city to a random other player and tells both
// AIs about it.
func (l *Loop) maybeTransfer() (bool, error) {
	if len(l.world.Players) < 2 || len(l.world.Cities) == 0 {
		return false, nil
	}
	if l.cfg.TransferChance <= 0 || l.rng.Float64() >= l.cfg.TransferChance {
		return false, nil
	}
	city := l.world.Cities[l.rng.Intn(len(l.world.Cities))]
	from := city.Owner
	to := from
	for to == from {
		to = l.world.Players[l.rng.Intn(len(l.world.Players))]
	}
	if err := l.world.Transfer(city.ID, to); err != nil {
		return false, err
	}
	if l.aiDisabled {
		return true, nil
	}
	for _, p := range []aimsg.PlayerID{from, to} {
		snap, err := l.world.CitySnapshot(city.ID)
		if err != nil {
			return true, err
		}
		if err := l.reg.Submit(p, aimsg.CityChanged{CityID: city.ID, Data: snap}); err != nil {
			snap.Release()
			if !errors.Is(err, aiplayer.ErrNotRunning) {
				return true, err
			}
		}
	}
	l.log.Debug("city transferred", "city", city.ID, "from", from, "to", to)
	return true, nil
}

// await refreshes requests until every waiting AI has reported the turn done
// or the turn timeout passes.
func (l *Loop) await(ctx context.Context, turn int, waiting []aimsg.PlayerID) (bool, error) {
	deadline := time.NewTimer(l.cfg.TurnTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()

	for {
		l.reg.Refresh(l.world)
		if l.allDone(turn, waiting) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			l.reg.Refresh(l.world)
			if l.allDone(turn, waiting) {
				return false, nil
			}
			l.log.Warn("turn timed out waiting for ai", "turn", turn, "timeout", l.cfg.TurnTimeout)
			return true, nil
		case <-tick.C:
		}
	}
}

func (l *Loop) allDone(turn int, waiting []aimsg.PlayerID) bool {
	for _, p := range waiting {
		if l.world.Done(p) < turn {
			return false
		}
	}
	return true
}
