// Command dwchange builds Dynamic World land-cover composites from a local scene
// catalog and renders, assesses and compares them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chris010970/dynamicworld/pkg/catalog"
	"github.com/chris010970/dynamicworld/pkg/config"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/telemetry"
	"github.com/chris010970/dynamicworld/pkg/workflow"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath      string
	logLevel        string
	metricsTextfile string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dwchange",
		Short: "Dynamic World land-cover compositing and change toolkit",
		Long: `dwchange reduces Dynamic World scenes held in a local catalog to
interval composites (mode and max-median labels), then writes label maps,
animations, coverage charts, accuracy assessments and change reports.

Import scene files first with "dwchange import", then run the other
subcommands against the same --config.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			xlog.Configure(xlog.Config{Level: cfg.Logging.Level, Output: cmd.ErrOrStderr()})
			a.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.metricsTextfile == "" {
				return nil
			}
			return telemetry.WriteTextfile(a.metricsTextfile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "dwchange.yaml", "run configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		a.importCmd(),
		a.exportCmd(),
		a.intervalsCmd(),
		a.compositeCmd(),
		a.animateCmd(),
		a.chartCmd(),
		a.compareCmd(),
		a.changeCmd(),
	)
	return root
}

// session opens the catalog, records the run and returns a runner whose logs carry the
// run ID. The returned close func must be called.
func (a *app) session(ctx context.Context, kind string) (context.Context, *workflow.Runner, func(), error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	store, err := catalog.Open(a.cfg.Catalog)
	if err != nil {
		return nil, nil, nil, err
	}
	id, err := store.RecordRun(ctx, kind, runParams(a.cfg))
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	ctx = xlog.ContextWithRunID(ctx, id)
	xlog.FromContext(ctx, "cli").Info().Str("kind", kind).Msg("run started")
	return ctx, workflow.New(a.cfg, store), func() { _ = store.Close() }, nil
}

func runParams(cfg *config.Config) map[string]any {
	return map[string]any{
		"start":     cfg.Start,
		"end":       cfg.End,
		"frequency": cfg.Frequency,
		"method":    cfg.Method,
		"meta_type": cfg.MetaType,
		"roi":       cfg.Region,
		"output":    cfg.Output,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
