package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/brensch/threadai/config"
	"github.com/brensch/threadai/thread"
)

type runFlags struct {
	configFile string
	players    int
	turns      int
	backend    string
	maxThreads int
	traceDir   string
	logLevel   string
	logFormat  string
	logFile    string
	seed       int64
	tui        bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aisim",
		Short: "Drive per-player AI worker threads against a simulated game",
		Long: `aisim plays a small simulated game on the game thread while every player's
AI runs on its own worker thread. Commands flow to the workers through
unbounded queues and the workers' requests are applied back on the game
thread each turn.`,
		SilenceUsage: true,
	}

	var f runFlags
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				color.Red("Invalid config: %v", err)
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, f, cmd.OutOrStdout())
		},
	}
	runCmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Path to YAML config file")
	runCmd.Flags().IntVarP(&f.players, "players", "p", 0, "Number of players")
	runCmd.Flags().IntVarP(&f.turns, "turns", "t", 0, "Number of turns to play")
	runCmd.Flags().StringVarP(&f.backend, "backend", "b", "", "Thread backend (goroutine, pinned, nocond)")
	runCmd.Flags().IntVar(&f.maxThreads, "max-threads", 0, "Cap on live worker threads (0 = unlimited)")
	runCmd.Flags().StringVar(&f.traceDir, "trace", "", "Write dispatch traces as parquet into this directory")
	runCmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (text, json, pretty)")
	runCmd.Flags().StringVar(&f.logFile, "log-file", "", "Write logs to this file instead of stderr")
	runCmd.Flags().Int64Var(&f.seed, "seed", 0, "Random seed")
	runCmd.Flags().BoolVar(&f.tui, "tui", false, "Show a live per-player view")

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "List thread backends",
		Run: func(cmd *cobra.Command, args []string) {
			printBackends(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(runCmd, backendsCmd)
	return rootCmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, f runFlags) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("players") {
		cfg.Sim.Players = f.players
	}
	if flags.Changed("turns") {
		cfg.Sim.Turns = f.turns
	}
	if flags.Changed("backend") {
		cfg.Thread.Backend = f.backend
	}
	if flags.Changed("max-threads") {
		cfg.Thread.MaxThreads = f.maxThreads
	}
	if flags.Changed("trace") {
		cfg.Trace.Enabled = f.traceDir != ""
		cfg.Trace.Dir = f.traceDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if flags.Changed("seed") {
		cfg.Sim.Seed = f.seed
	}
	return cfg, cfg.Validate()
}

func printBackends(w io.Writer) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Backend", "Cond Vars", "AI Workers"}),
	)
	for _, b := range thread.Backends() {
		workers := "yes"
		if !b.HasCondSupport() {
			workers = "no"
		}
		_ = table.Append([]string{b.String(), fmt.Sprintf("%v", b.HasCondSupport()), workers})
	}
	_ = table.Render()
}
