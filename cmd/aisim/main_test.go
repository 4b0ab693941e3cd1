package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/threadai/aiplayer"
	"github.com/brensch/threadai/config"
	"github.com/brensch/threadai/sim"
	"github.com/brensch/threadai/trace"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackendsCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"backends"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"goroutine", "pinned", "nocond"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("backends output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"run", "--players", "2", "--turns", "3", "--seed", "5",
		"--trace", dir, "--log-level", "error", "--log-file", filepath.Join(dir, "aisim.log")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Summary:", "Turns: 3", "ai-player-1", "ai-player-2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no trace files in %s (%v)", dir, err)
	}
}

func TestRunCommandNoCondDisablesAI(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"run", "--backend", "nocond", "--turns", "2",
		"--log-file", filepath.Join(dir, "aisim.log")})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(buf.String(), "Threaded AI disabled") || !strings.Contains(buf.String(), "Turns: 2") {
		t.Fatalf("output:\n%s", buf.String())
	}
}

func TestRunCommandRejectsBadBackend(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"run", "--backend", "fibers", "--turns", "1"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected unknown backend to be rejected")
	}
}

func TestSimulateTracesEveryDispatch(t *testing.T) {
	cfg := config.Default()
	cfg.Sim.Players = 3
	cfg.Sim.Turns = 4
	cfg.Sim.ToggleChance = 0
	cfg.Sim.TransferChance = 0
	cfg.Sim.TurnTimeout = 10 * time.Second
	cfg.Trace.Enabled = true
	cfg.Trace.Dir = t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := simulate(ctx, cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if res.Summary.Turns != 4 || res.Summary.TimedOut != 0 {
		t.Fatalf("summary=%+v", res.Summary)
	}
	if res.Exited != 3 || res.Dropped != 0 || res.Outstanding != 0 {
		t.Fatalf("exited=%d dropped=%d outstanding=%d", res.Exited, res.Dropped, res.Outstanding)
	}

	var dispatched uint64
	for _, st := range res.Players {
		if st.State != aiplayer.StateDestroyed {
			t.Fatalf("player %d state=%s", st.Player, st.State)
		}
		dispatched += st.Dispatched
	}
	// FirstActivities and PhaseFinished per player per turn.
	if dispatched != 24 || res.TraceRows != 24 || res.TraceDrops != 0 {
		t.Fatalf("dispatched=%d rows=%d drops=%d", dispatched, res.TraceRows, res.TraceDrops)
	}

	rows := 0
	for _, f := range res.TraceFiles {
		got, err := trace.ReadFile(f)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		for _, r := range got {
			if r.RunID != res.RunID {
				t.Fatalf("row run id %q, want %q", r.RunID, res.RunID)
			}
		}
		rows += len(got)
	}
	if rows != 24 {
		t.Fatalf("rows on disk=%d", rows)
	}
	if _, err := os.Stat(filepath.Join(cfg.Trace.Dir, "tmp")); err != nil {
		t.Fatalf("tmp dir: %v", err)
	}
}

func TestModelUpdate(t *testing.T) {
	updates := make(chan turnMsg)
	cancelled := false
	m := newModel(10, updates, func() { cancelled = true })

	next, cmd := m.Update(turnMsg{
		report: sim.TurnReport{Turn: 1, Running: 2, Applied: 3, Transfers: 1, TimedOut: true},
		stats:  []aiplayer.Stats{{Player: 1, Name: "ai-player-1", State: aiplayer.StateRunning}},
	})
	m = next.(model)
	if cmd == nil || m.applied != 3 || m.transfers != 1 || len(m.recent) != 1 {
		t.Fatalf("after turn: %+v", m)
	}
	if !strings.Contains(m.recent[0], "timed out") {
		t.Fatalf("recent=%q", m.recent[0])
	}
	view := m.View()
	if !strings.Contains(view, "Turn:        1 / 10") || !strings.Contains(view, "ai-player-1") {
		t.Fatalf("view:\n%s", view)
	}

	_, cmd = m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("doneMsg should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("doneMsg did not return tea.Quit")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled || cmd == nil {
		t.Fatal("q should cancel the run and quit")
	}

	close(updates)
	if _, ok := waitForTurn(updates)().(doneMsg); !ok {
		t.Fatal("closed updates should produce doneMsg")
	}
}
