package aiplayer

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/threadai/aimsg"
)

// DispatchEvent describes one handled command. It is produced on the worker
// thread right after the handler returns.
type DispatchEvent struct {
	Player    aimsg.PlayerID
	Session   uuid.UUID
	Seq       uint64
	Kind      aimsg.Kind
	SentAt    time.Time
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// QueueWait is how long the command sat in the queue.
func (e DispatchEvent) QueueWait() time.Duration {
	return e.StartedAt.Sub(e.SentAt)
}

// Observer receives dispatch events. Observe runs on worker threads and must
// not block.
type Observer interface {
	Observe(DispatchEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(DispatchEvent)

func (f ObserverFunc) Observe(e DispatchEvent) { f(e) }

type options struct {
	logger   *slog.Logger
	observer Observer
	name     string
}

// Option configures a Controller or a Registry.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithName sets the worker thread name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
