package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/threadai/aiplayer"
	"github.com/brensch/threadai/config"
	"github.com/brensch/threadai/logging"
	"github.com/brensch/threadai/sim"
	"github.com/brensch/threadai/thread"
	"github.com/brensch/threadai/trace"
)

// result is everything printed at the end of a run.
type result struct {
	RunID       string
	Summary     sim.Summary
	Players     []aiplayer.Stats
	Dropped     int
	Exited      uint64
	Outstanding int64
	TraceFiles  []string
	TraceRows   uint64
	TraceDrops  uint64
	AIDisabled  bool
	Took        time.Duration
}

func run(ctx context.Context, cfg config.Config, f runFlags, out io.Writer) error {
	logOut := io.Writer(os.Stderr)
	if f.logFile != "" {
		lf, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		logOut = lf
	} else if f.tui {
		logOut = io.Discard
	}
	logger, err := logging.New(logOut, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if !f.tui {
		printHeader(out, cfg)
	}

	var updates chan turnMsg
	if f.tui {
		updates = make(chan turnMsg, 64)
	}
	res, err := simulate(ctx, cfg, logger, updates)
	if err != nil && !errors.Is(err, context.Canceled) {
		color.New(color.FgRed).Fprintf(out, "Run failed: %v\n", err)
		return err
	}
	printResult(out, res)
	return nil
}

// simulate wires the runtime, registry, trace recorder and game loop
// together and plays the configured number of turns. A non-nil updates
// channel turns on the TUI; it gets every turn and is closed when the loop
// ends.
func simulate(ctx context.Context, cfg config.Config, logger *slog.Logger, updates chan turnMsg) (result, error) {
	res := result{RunID: uuid.NewString()}
	logger = logger.With("run", res.RunID)
	started := time.Now()

	rtCfg, err := cfg.Thread.Runtime()
	if err != nil {
		return res, err
	}
	rt := thread.New(rtCfg, logger)
	var exited atomic.Uint64
	if err := rt.RegisterAtExit(func(id thread.ID) {
		exited.Add(1)
		logger.Debug("worker thread exited", "thread", uint64(id))
	}); err != nil {
		return res, err
	}

	opts := []aiplayer.Option{aiplayer.WithLogger(logger)}
	var rec *trace.Recorder
	if cfg.Trace.Enabled {
		rec, err = trace.NewRecorder(cfg.Trace, res.RunID, logger)
		if err != nil {
			return res, fmt.Errorf("create trace recorder: %w", err)
		}
		opts = append(opts, aiplayer.WithObserver(rec))
	}
	reg := aiplayer.NewRegistry(rt, opts...)

	rng := rand.New(rand.NewSource(cfg.Sim.Seed))
	world := sim.NewWorld(cfg.Sim, rng)
	loop := sim.NewLoop(world, reg, cfg.Sim, rng, logger)

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, cancelLoop := context.WithCancel(gctx)
	defer cancelLoop()

	if updates != nil {
		loop.OnTurn = func(rep sim.TurnReport) {
			msg := turnMsg{report: rep, stats: reg.Stats()}
			select {
			case updates <- msg:
			default:
			}
		}
	}

	if rec != nil {
		g.Go(func() error { return rec.Run(gctx) })
	}

	g.Go(func() error {
		if updates != nil {
			defer close(updates)
		}
		if rec != nil {
			defer rec.Close()
		}

		sum, runErr := loop.Run(loopCtx)
		res.Summary = sum
		res.AIDisabled = loop.AIDisabled()

		// Keep the controllers so their counters can be read after they
		// are freed.
		var ctrls []*aiplayer.Controller
		for _, p := range reg.Players() {
			if c, ok := reg.Get(p); ok {
				ctrls = append(ctrls, c)
			}
		}
		res.Dropped = reg.Shutdown()
		for _, c := range ctrls {
			res.Players = append(res.Players, c.Stats())
		}
		res.Outstanding = world.Outstanding()
		return runErr
	})

	if updates != nil {
		g.Go(func() error {
			p := tea.NewProgram(newModel(cfg.Sim.Turns, updates, cancelLoop))
			_, err := p.Run()
			return err
		})
	}

	err = g.Wait()
	res.Exited = exited.Load()
	res.Took = time.Since(started)
	if rec != nil {
		res.TraceFiles = rec.Files()
		res.TraceRows = rec.Written()
		res.TraceDrops = rec.Dropped()
	}
	if rt.Live() != 0 {
		logger.Warn("worker threads still live after shutdown", "live", rt.Live())
	}
	return res, err
}

func printHeader(out io.Writer, cfg config.Config) {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintln(out, "\n╭──────────────────────────╮")
	title.Fprintln(out, "│  AI worker simulation    │")
	title.Fprintln(out, "╰──────────────────────────╯")
	fmt.Fprintf(out, "   Backend: %s (max threads %d)\n", cfg.Thread.Backend, cfg.Thread.MaxThreads)
	fmt.Fprintf(out, "   Players: %d, cities each: %d, turns: %d, seed: %d\n",
		cfg.Sim.Players, cfg.Sim.CitiesPerPlayer, cfg.Sim.Turns, cfg.Sim.Seed)
	if cfg.Trace.Enabled {
		fmt.Fprintf(out, "   Tracing to: %s\n", cfg.Trace.Dir)
	}
	fmt.Fprintln(out)
}

func printResult(out io.Writer, res result) {
	table := tablewriter.NewTable(out,
		tablewriter.WithHeader([]string{"Player", "Worker", "State", "Starts", "Submitted", "Dispatched", "Failed", "Queue Peak", "Applied"}),
	)
	for _, st := range res.Players {
		_ = table.Append([]string{
			fmt.Sprintf("%d", st.Player),
			st.Name,
			st.State.String(),
			fmt.Sprintf("%d", st.Starts),
			fmt.Sprintf("%d", st.Submitted),
			fmt.Sprintf("%d", st.Dispatched),
			fmt.Sprintf("%d", st.Failed),
			fmt.Sprintf("%d", st.HighWater),
			fmt.Sprintf("%d", st.AppliedRequests),
		})
	}
	_ = table.Render()

	s := res.Summary
	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "   Run: %s (%s)\n", res.RunID, res.Took.Round(time.Millisecond))
	fmt.Fprintf(out, "   Turns: %d, control toggles: %d, city transfers: %d\n", s.Turns, s.Toggles, s.Transfers)
	fmt.Fprintf(out, "   Worker tasks applied: %d, discarded: %d, tiles improved: %d\n", s.Applied, s.Discarded, s.Improved)
	fmt.Fprintf(out, "   Worker threads exited: %d, commands dropped at shutdown: %d\n", res.Exited, res.Dropped)
	if len(res.TraceFiles) > 0 || res.TraceDrops > 0 {
		fmt.Fprintf(out, "   Trace: %d rows in %d files, %d dropped\n", res.TraceRows, len(res.TraceFiles), res.TraceDrops)
	}

	warn := color.New(color.FgYellow)
	if res.AIDisabled {
		warn.Fprintln(out, "   Threaded AI disabled: the thread backend has no condition variables")
	}
	if s.TimedOut > 0 {
		warn.Fprintf(out, "   %d turns timed out waiting for the AI\n", s.TimedOut)
	}
	if res.Outstanding != 0 {
		warn.Fprintf(out, "   %d snapshots were never released\n", res.Outstanding)
	}
	color.New(color.FgGreen, color.Bold).Fprintln(out, "\n✓ Done")
}

// playerLine is shared by the TUI.
func playerLine(st aiplayer.Stats) string {
	return fmt.Sprintf("  %-4d %-14s %-9s queued %-4d peak %-4d dispatched %-6d failed %-3d applied %d",
		st.Player, st.Name, st.State, st.Queued, st.HighWater, st.Dispatched, st.Failed, st.AppliedRequests)
}
