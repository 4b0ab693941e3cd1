package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/brensch/threadai/aiplayer"
)

type Config struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	RowsPerFlush int    `yaml:"rows_per_flush"`
	Buffer       int    `yaml:"buffer"`
}

// Recorder is an aiplayer.Observer that turns dispatch events into parquet
// rows. Observe never blocks: when the buffer is full the event is dropped
// and counted. Rows are only written while Run is executing.
type Recorder struct {
	dir          string
	runID        string
	rowsPerFlush int
	log          *slog.Logger

	events  chan Row
	stop    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	written atomic.Uint64

	mu    sync.Mutex
	files []string
	seq   int
}

var _ aiplayer.Observer = (*Recorder)(nil)

func NewRecorder(cfg Config, runID string, logger *slog.Logger) (*Recorder, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("trace dir is required")
	}
	if cfg.RowsPerFlush <= 0 {
		cfg.RowsPerFlush = 4096
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		dir:          cfg.Dir,
		runID:        runID,
		rowsPerFlush: cfg.RowsPerFlush,
		log:          logger.With("component", "trace"),
		events:       make(chan Row, cfg.Buffer),
		stop:         make(chan struct{}),
	}, nil
}

func (r *Recorder) Observe(e aiplayer.DispatchEvent) {
	select {
	case r.events <- RowFromEvent(r.runID, e):
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Files lists the finalized trace files so far.
func (r *Recorder) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Close asks Run to flush what is buffered and return.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
}

// Run writes events until Close is called or ctx is done, then drains the
// buffer and finalizes the last file.
func (r *Recorder) Run(ctx context.Context) error {
	pending := make([]Row, 0, r.rowsPerFlush)
	for {
		select {
		case row := <-r.events:
			pending = append(pending, row)
			if len(pending) >= r.rowsPerFlush {
				if err := r.flush(pending); err != nil {
					return err
				}
				pending = pending[:0]
			}
		case <-r.stop:
			return r.drain(pending)
		case <-ctx.Done():
			return r.drain(pending)
		}
	}
}

func (r *Recorder) drain(pending []Row) error {
	for {
		select {
		case row := <-r.events:
			pending = append(pending, row)
		default:
			if err := r.flush(pending); err != nil {
				return err
			}
			r.log.Info("trace closed",
				"files", len(r.Files()),
				"rows", r.written.Load(),
				"dropped", r.dropped.Load())
			return nil
		}
	}
}

// flush writes rows to a fresh file, in chunks of rowsPerFlush.
func (r *Recorder) flush(rows []Row) error {
	for len(rows) > 0 {
		n := min(len(rows), r.rowsPerFlush)
		if err := r.writeFile(rows[:n]); err != nil {
			return err
		}
		rows = rows[n:]
	}
	return nil
}

// writeFile puts rows in the next numbered file of this run.
func (r *Recorder) writeFile(rows []Row) error {
	r.mu.Lock()
	r.seq++
	name := fmt.Sprintf("trace_%s_%05d.parquet", shortID(r.runID), r.seq)
	r.mu.Unlock()

	path, err := WriteFile(r.dir, name, rows)
	if err != nil {
		return fmt.Errorf("trace file %s: %w", name, err)
	}
	if path == "" {
		return nil
	}
	r.written.Add(uint64(len(rows)))
	r.mu.Lock()
	r.files = append(r.files, path)
	r.mu.Unlock()
	r.log.Debug("trace flushed", "path", path, "rows", len(rows))
	return nil
}

func shortID(id string) string {
	if id == "" {
		return "run"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
