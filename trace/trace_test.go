package trace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/threadai/aimsg"
	"github.com/brensch/threadai/aiplayer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(player int, seq uint64, err error) aiplayer.DispatchEvent {
	sent := time.Unix(100, 0)
	return aiplayer.DispatchEvent{
		Player:    aimsg.PlayerID(player),
		Session:   uuid.New(),
		Seq:       seq,
		Kind:      aimsg.KindPhaseFinished,
		SentAt:    sent,
		StartedAt: sent.Add(3 * time.Millisecond),
		Duration:  2 * time.Millisecond,
		Err:       err,
	}
}

func TestRowFromEvent(t *testing.T) {
	e := event(4, 9, errors.New("boom"))
	r := RowFromEvent("run-1", e)
	if r.RunID != "run-1" || r.Player != 4 || r.Seq != 9 {
		t.Fatalf("unexpected row %+v", r)
	}
	if r.Kind != "phase_finished" {
		t.Fatalf("kind = %q", r.Kind)
	}
	if r.QueueWaitNanos != int64(3*time.Millisecond) || r.DurationNanos != int64(2*time.Millisecond) {
		t.Fatalf("timings = %d/%d", r.QueueWaitNanos, r.DurationNanos)
	}
	if r.Error != "boom" || r.Session != e.Session.String() {
		t.Fatalf("error/session = %q/%q", r.Error, r.Session)
	}
}

func TestWriteFileMovesCompleteFile(t *testing.T) {
	dir := t.TempDir()
	rows := []Row{RowFromEvent("r", event(1, 1, nil)), RowFromEvent("r", event(2, 2, nil))}
	path, err := WriteFile(dir, "one.parquet", rows)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if path != filepath.Join(dir, "one.parquet") {
		t.Fatalf("path=%q", path)
	}
	if entries, _ := os.ReadDir(filepath.Join(dir, "tmp")); len(entries) != 0 {
		t.Fatalf("tmp not empty: %v", entries)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 2 || got[0].Player != 1 || got[1].Player != 2 {
		t.Fatalf("read back %+v", got)
	}
}

func TestWriteFileNoRowsNoFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteFile(dir, "empty.parquet", nil)
	if err != nil || path != "" {
		t.Fatalf("WriteFile = %q, %v", path, err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("dir not empty: %v", entries)
	}
	if _, err := WriteFile("", "x.parquet", []Row{{}}); !errors.Is(err, ErrNoDestination) {
		t.Fatalf("no dir err=%v", err)
	}
}

func TestWriteFileFailureLeavesNoTmp(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory in the way makes the final rename fail.
	blocker := filepath.Join(dir, "taken.parquet")
	if err := os.MkdirAll(filepath.Join(blocker, "x"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteFile(dir, "taken.parquet", []Row{RowFromEvent("r", event(1, 1, nil))}); err == nil {
		t.Fatal("expected rename failure")
	}
	if entries, _ := os.ReadDir(filepath.Join(dir, "tmp")); len(entries) != 0 {
		t.Fatalf("partial file left in tmp: %v", entries)
	}
}

func TestRecorderWritesAllEvents(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(Config{Dir: dir, RowsPerFlush: 3, Buffer: 64}, uuid.NewString(), quietLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rec.Run(context.Background()) }()

	for i := 1; i <= 8; i++ {
		rec.Observe(event(i%2, uint64(i), nil))
	}
	rec.Close()
	rec.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	if rec.Dropped() != 0 {
		t.Fatalf("dropped %d", rec.Dropped())
	}
	files := rec.Files()
	if len(files) < 3 {
		t.Fatalf("expected at least 3 files for 8 rows at 3 per flush, got %d", len(files))
	}
	total := 0
	seen := map[int64]bool{}
	for _, f := range files {
		rows, err := ReadFile(f)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", f, err)
		}
		if len(rows) > 3 {
			t.Fatalf("%s has %d rows", f, len(rows))
		}
		for _, r := range rows {
			seen[r.Seq] = true
		}
		total += len(rows)
	}
	if total != 8 || len(seen) != 8 || rec.Written() != 8 {
		t.Fatalf("total=%d distinct=%d written=%d", total, len(seen), rec.Written())
	}
}

func TestRecorderStopsOnContext(t *testing.T) {
	rec, err := NewRecorder(Config{Dir: t.TempDir()}, "ctx", quietLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.Observe(event(1, 1, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Written() != 1 || len(rec.Files()) != 1 {
		t.Fatalf("written=%d files=%v", rec.Written(), rec.Files())
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	rec, err := NewRecorder(Config{Dir: t.TempDir(), Buffer: 1}, "drop", quietLogger())
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 0; i < 3; i++ {
		rec.Observe(event(1, uint64(i), nil))
	}
	if rec.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", rec.Dropped())
	}
}

func TestNewRecorderRequiresDir(t *testing.T) {
	if _, err := NewRecorder(Config{}, "x", nil); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
