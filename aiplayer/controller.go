// Package aiplayer runs each AI-controlled player's decision making on its
// own worker thread.
//
// A Controller owns one worker thread and two queues: commands from the game
// thread to the worker, and requests from the worker back to the game
// thread. The game thread never waits on AI work; it pays one lock to
// Submit and drains requests with Refresh when it is ready for them.
//
// Lifecycle calls (GainControl, LoseControl, Free) are not reentrant. The
// game loop that owns player management serializes them.
package aiplayer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/threadai/aimsg"
	"github.com/brensch/threadai/msgqueue"
	"github.com/brensch/threadai/thread"
)

var (
	ErrNotRunning       = errors.New("aiplayer: worker not running")
	ErrExitReserved     = errors.New("aiplayer: exit is sent by LoseControl only")
	ErrFreed            = errors.New("aiplayer: controller freed")
	ErrNilHandler       = errors.New("aiplayer: nil handler")
	ErrNilMessage       = errors.New("aiplayer: nil message")
	ErrUnknownPlayer    = errors.New("aiplayer: player has no AI allocated")
	ErrAlreadyAllocated = errors.New("aiplayer: player already has AI allocated")
	ErrStopping         = errors.New("aiplayer: worker is stopping")
)

// State is the controller lifecycle position.
type State int32

const (
	StateUninitialized State = iota
	StateAllocated
	StateRunning
	StateStopping
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAllocated:
		return "allocated"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type (
	command = *aimsg.Envelope[aimsg.Message]
	reply   = *aimsg.Envelope[aimsg.Request]
)

// Controller is the per-player owner of an AI worker thread.
type Controller struct {
	rt       *thread.Runtime
	player   aimsg.PlayerID
	name     string
	handler  aimsg.Handler
	observer Observer
	log      *slog.Logger

	cmds *msgqueue.Queue[command]
	reqs *msgqueue.Queue[reply]

	// gate makes the running check in Submit and the enqueue one step with
	// respect to requestStop, so no command lands behind Exit.
	gate     sync.RWMutex
	state    atomic.Int32
	running  atomic.Bool
	worker   *thread.Handle
	workerID atomic.Uint64
	session  atomic.Pointer[uuid.UUID]

	cmdSeq     atomic.Uint64
	reqSeq     atomic.Uint64
	submitted  atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
	applied    atomic.Uint64
	starts     atomic.Uint64
}

// Alloc sets up the AI for player without starting its worker. It fails
// closed when rt cannot block a consumer on a condition variable.
func Alloc(rt *thread.Runtime, player aimsg.PlayerID, handler aimsg.Handler, opts ...Option) (*Controller, error) {
	if handler == nil {
		return nil, fmt.Errorf("alloc ai for player %d: %w", player, ErrNilHandler)
	}
	if !rt.HasCondSupport() {
		return nil, fmt.Errorf("alloc ai for player %d: %w", player, thread.ErrNoCondSupport)
	}

	o := buildOptions(opts)
	c := &Controller{
		rt:       rt,
		player:   player,
		handler:  handler,
		observer: o.observer,
		name:     o.name,
	}
	if c.name == "" {
		c.name = fmt.Sprintf("ai-player-%d", player)
	}
	c.log = o.logger.With("player", int(player), "worker", c.name)

	cmds, err := msgqueue.New[command](rt, aimsg.ReleaseEnvelope)
	if err != nil {
		return nil, fmt.Errorf("alloc ai for player %d: command queue: %w", player, err)
	}
	reqs, err := msgqueue.New[reply](rt, nil)
	if err != nil {
		cmds.Destroy()
		return nil, fmt.Errorf("alloc ai for player %d: request queue: %w", player, err)
	}
	c.cmds, c.reqs = cmds, reqs

	c.state.Store(int32(StateAllocated))
	c.log.Debug("ai allocated")
	return c, nil
}

func (c *Controller) Player() aimsg.PlayerID { return c.player }
func (c *Controller) Name() string           { return c.name }
func (c *Controller) State() State           { return State(c.state.Load()) }

// Running reports whether Submit currently accepts commands.
func (c *Controller) Running() bool { return c.running.Load() }

// GainControl starts the worker thread. It is a no-op while running. If the
// thread cannot be started the controller stays allocated and no worker
// exists.
func (c *Controller) GainControl() error {
	switch c.State() {
	case StateRunning:
		return nil
	case StateStopping:
		return fmt.Errorf("gain control of player %d: %w", c.player, ErrStopping)
	case StateDestroyed:
		return fmt.Errorf("gain control of player %d: %w", c.player, ErrFreed)
	}

	session := uuid.New()
	c.session.Store(&session)
	c.gate.Lock()
	c.running.Store(true)
	c.gate.Unlock()

	h, err := c.rt.Start(c.name, c.workerMain, nil)
	if err != nil {
		c.gate.Lock()
		c.running.Store(false)
		c.gate.Unlock()
		c.session.Store(nil)
		return fmt.Errorf("gain control of player %d: %w", c.player, err)
	}

	c.worker = h
	c.starts.Add(1)
	c.state.Store(int32(StateRunning))
	c.log.Info("ai gained control", "thread", h.String(), "session", session.String())
	return nil
}

// LoseControl stops the worker: it sends Exit, then joins the thread. A
// command being handled finishes first; commands queued behind Exit stay
// queued until Free. Calling it when not running does nothing. Calling it
// from the worker itself panics, since the worker cannot join itself.
func (c *Controller) LoseControl() {
	c.checkNotWorker("lose control")
	if !c.requestStop() {
		return
	}
	c.awaitStop()
}

// requestStop sends Exit to a running worker. It reports whether a stop is
// now pending.
func (c *Controller) requestStop() bool {
	c.gate.Lock()
	defer c.gate.Unlock()
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return false
	}
	c.running.Store(false)
	c.cmds.Send(&aimsg.Envelope[aimsg.Message]{
		Seq:    c.cmdSeq.Add(1),
		Player: c.player,
		Msg:    aimsg.Exit{},
		SentAt: time.Now(),
	})
	return true
}

// checkNotWorker panics when called on this controller's worker thread.
func (c *Controller) checkNotWorker(op string) {
	if id := c.workerID.Load(); id != 0 && thread.Equal(thread.Self(), thread.ID(id)) {
		panic(fmt.Sprintf("aiplayer: %s of player %d from its own worker (self-join)", op, c.player))
	}
}

func (c *Controller) awaitStop() {
	h := c.worker
	h.Wait()
	c.worker = nil
	c.state.Store(int32(StateAllocated))
	c.log.Info("ai lost control", "thread", h.String(), "queued", c.cmds.Len())
}

// Free tears the AI down, stopping the worker first if it still runs. It
// returns how many commands were discarded unhandled; their payloads are
// released. Freeing twice is a no-op.
func (c *Controller) Free() int {
	c.checkNotWorker("free")
	switch c.State() {
	case StateDestroyed:
		return 0
	case StateRunning:
		c.log.Warn("freeing ai while its worker runs, stopping it first")
		c.LoseControl()
	}

	dropped := c.cmds.Destroy()
	pending := c.reqs.Destroy()
	c.state.Store(int32(StateDestroyed))
	c.log.Debug("ai freed", "dropped_commands", dropped, "dropped_requests", pending)
	return dropped
}

// Submit queues msg for the worker. It fails with ErrNotRunning when the AI
// does not have control; Exit is reserved for LoseControl.
func (c *Controller) Submit(msg aimsg.Message) error {
	if msg == nil {
		return fmt.Errorf("submit to player %d: %w", c.player, ErrNilMessage)
	}
	if msg.Kind() == aimsg.KindExit {
		return fmt.Errorf("submit to player %d: %w", c.player, ErrExitReserved)
	}
	if c.State() == StateDestroyed {
		return fmt.Errorf("submit %s to player %d: %w", msg.Kind(), c.player, ErrFreed)
	}
	c.gate.RLock()
	defer c.gate.RUnlock()
	if !c.running.Load() {
		return fmt.Errorf("submit %s to player %d: %w", msg.Kind(), c.player, ErrNotRunning)
	}

	c.cmds.Send(&aimsg.Envelope[aimsg.Message]{
		Seq:    c.cmdSeq.Add(1),
		Player: c.player,
		Msg:    msg,
		SentAt: time.Now(),
	})
	c.submitted.Add(1)
	return nil
}

// Refresh applies every request the worker has produced so far. It must run
// on the game thread and never blocks on the worker.
func (c *Controller) Refresh(h aimsg.RequestHandler) int {
	if c.State() == StateDestroyed {
		return 0
	}
	reqs := c.reqs.Drain()
	for _, r := range reqs {
		if err := aimsg.DispatchRequest(c.player, h, r.Msg); err != nil {
			c.log.Warn("ai request rejected", "request", r.Msg.RequestKind().String(), "seq", r.Seq, "err", err)
			continue
		}
		c.applied.Add(1)
	}
	return len(reqs)
}

func (c *Controller) workerMain(any) {
	c.workerID.Store(uint64(thread.Self()))
	defer c.workerID.Store(0)
	for {
		env := c.cmds.Receive()
		if env.Msg.Kind() == aimsg.KindExit {
			return
		}
		c.handle(env)
	}
}

func (c *Controller) handle(env command) {
	started := time.Now()
	err := c.dispatch(env.Msg)
	took := time.Since(started)
	aimsg.ReleaseEnvelope(env)

	c.dispatched.Add(1)
	if err != nil {
		c.failed.Add(1)
		c.log.Error("ai command failed", "kind", env.Msg.Kind().String(), "seq", env.Seq, "err", err)
	}

	if c.observer != nil {
		ev := DispatchEvent{
			Player:    c.player,
			Seq:       env.Seq,
			Kind:      env.Msg.Kind(),
			SentAt:    env.SentAt,
			StartedAt: started,
			Duration:  took,
			Err:       err,
		}
		if s := c.session.Load(); s != nil {
			ev.Session = *s
		}
		c.observer.Observe(ev)
	}
}

// dispatch keeps a failing handler from taking the worker down with it.
func (c *Controller) dispatch(msg aimsg.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return aimsg.Dispatch(workerContext{c}, c.handler, msg)
}

type workerContext struct {
	c *Controller
}

func (w workerContext) Player() aimsg.PlayerID { return w.c.player }

func (w workerContext) Reply(r aimsg.Request) {
	w.c.reqs.Send(&aimsg.Envelope[aimsg.Request]{
		Seq:    w.c.reqSeq.Add(1),
		Player: w.c.player,
		Msg:    r,
		SentAt: time.Now(),
	})
}
