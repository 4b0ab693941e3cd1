package aiplayer

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/brensch/threadai/aimsg"
	"github.com/brensch/threadai/thread"
)

// Registry maps players to their AI controllers. It is the surface the
// player-management code calls when a player's control mode toggles.
type Registry struct {
	rt   *thread.Runtime
	opts []Option
	log  *slog.Logger

	mu      sync.Mutex
	players map[aimsg.PlayerID]*Controller
}

// NewRegistry creates an empty registry. opts apply to every controller it
// allocates.
func NewRegistry(rt *thread.Runtime, opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		rt:      rt,
		opts:    opts,
		log:     o.logger.With("component", "aiplayer"),
		players: make(map[aimsg.PlayerID]*Controller),
	}
}

// Alloc allocates the AI for player.
func (r *Registry) Alloc(player aimsg.PlayerID, handler aimsg.Handler) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.players[player]; ok {
		return nil, fmt.Errorf("alloc ai for player %d: %w", player, ErrAlreadyAllocated)
	}
	c, err := Alloc(r.rt, player, handler, r.opts...)
	if err != nil {
		return nil, err
	}
	r.players[player] = c
	return c, nil
}

func (r *Registry) Get(player aimsg.PlayerID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.players[player]
	return c, ok
}

// GainsControl starts player's worker.
func (r *Registry) GainsControl(player aimsg.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(player)
	if err != nil {
		return err
	}
	return c.GainControl()
}

// LosesControl stops player's worker.
func (r *Registry) LosesControl(player aimsg.PlayerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(player)
	if err != nil {
		return err
	}
	c.LoseControl()
	return nil
}

// Submit hands msg to player's AI.
func (r *Registry) Submit(player aimsg.PlayerID, msg aimsg.Message) error {
	r.mu.Lock()
	c, err := r.lookup(player)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Submit(msg)
}

// Broadcast submits msg to every player whose AI is running and returns how
// many received it.
func (r *Registry) Broadcast(msg aimsg.Message) int {
	sent := 0
	for _, c := range r.sorted() {
		if !c.Running() {
			continue
		}
		if err := c.Submit(msg); err != nil {
			r.log.Warn("broadcast skipped player", "player", int(c.player), "err", err)
			continue
		}
		sent++
	}
	return sent
}

// Refresh applies pending requests of every player, in player order.
func (r *Registry) Refresh(h aimsg.RequestHandler) int {
	n := 0
	for _, c := range r.sorted() {
		n += c.Refresh(h)
	}
	return n
}

// Free removes player's AI, stopping its worker if needed. It returns how
// many commands were discarded.
func (r *Registry) Free(player aimsg.PlayerID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(player)
	if err != nil {
		return 0, err
	}
	delete(r.players, player)
	return c.Free(), nil
}

// Shutdown stops and frees every AI. Exit goes to all running workers before
// any join, so workers wind down in parallel. It returns the total number of
// discarded commands.
func (r *Registry) Shutdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Controller, 0, len(r.players))
	for _, c := range r.players {
		all = append(all, c)
	}
	slices.SortFunc(all, byPlayer)

	for _, c := range all {
		c.checkNotWorker("shutdown")
	}
	var stopping []*Controller
	for _, c := range all {
		if c.requestStop() {
			stopping = append(stopping, c)
		}
	}
	for _, c := range stopping {
		c.awaitStop()
	}

	dropped := 0
	for _, c := range all {
		dropped += c.Free()
	}
	clear(r.players)

	r.log.Info("ai shut down", "players", len(all), "stopped", len(stopping), "dropped_commands", dropped)
	return dropped
}

// Players returns the allocated players in order.
func (r *Registry) Players() []aimsg.PlayerID {
	cs := r.sorted()
	out := make([]aimsg.PlayerID, len(cs))
	for i, c := range cs {
		out[i] = c.player
	}
	return out
}

// Stats returns a snapshot per player, in player order.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.players))
	for _, c := range r.players {
		out = append(out, c.Stats())
	}
	slices.SortFunc(out, func(a, b Stats) int { return int(a.Player) - int(b.Player) })
	return out
}

func (r *Registry) lookup(player aimsg.PlayerID) (*Controller, error) {
	c, ok := r.players[player]
	if !ok {
		return nil, fmt.Errorf("player %d: %w", player, ErrUnknownPlayer)
	}
	return c, nil
}

func (r *Registry) sorted() []*Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Controller, 0, len(r.players))
	for _, c := range r.players {
		out = append(out, c)
	}
	slices.SortFunc(out, byPlayer)
	return out
}

func byPlayer(a, b *Controller) int { return int(a.player) - int(b.player) }
