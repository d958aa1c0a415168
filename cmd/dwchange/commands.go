package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chris010970/dynamicworld/pkg/catalog"
	"github.com/chris010970/dynamicworld/pkg/dynamicworld"
	xlog "github.com/chris010970/dynamicworld/pkg/log"
	"github.com/chris010970/dynamicworld/pkg/workflow"
)

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <scene.json>...",
		Short: "Load scene files into the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := catalog.Open(a.cfg.Catalog)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			logger := xlog.FromContext(ctx, "import")
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				im, err := catalog.DecodeScene(f)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := store.Put(ctx, im); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				logger.Debug().Str(xlog.FieldPath, path).Str(xlog.FieldSceneID, im.ID).Msg("imported scene")
			}
			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d scenes, catalog holds %d\n", len(args), n)
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the catalogued scenes over the region and window as scene files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			roi, err := workflow.New(a.cfg, nil).Region()
			if err != nil {
				return err
			}
			start, end, err := a.cfg.Window()
			if err != nil {
				return err
			}

			store, err := catalog.Open(a.cfg.Catalog)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			paths, err := store.Export(cmd.Context(), args[0], roi.Bound(), start, end.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d scenes to %s\n", len(paths), args[0])
			return nil
		},
	}
}

func (a *app) intervalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intervals",
		Short: "Print the intervals generated for the configured window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			intervals, err := workflow.New(a.cfg, nil).Intervals()
			if err != nil {
				return err
			}
			for _, iv := range intervals {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", iv.StartDate(), iv.EndDate())
			}
			return nil
		},
	}
}

// compositeStep runs Composites and hands the result to fn.
func (a *app) compositeStep(use, short, kind string, fn func(*cobra.Command, *workflow.Runner, []dynamicworld.Composite) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, runner, done, err := a.session(cmd.Context(), kind)
			if err != nil {
				return err
			}
			defer done()
			cmd.SetContext(ctx)

			comps, err := runner.Composites(ctx)
			if err != nil {
				return err
			}
			if len(comps) == 0 {
				return fmt.Errorf("no scenes between %s and %s", a.cfg.Start, a.cfg.End)
			}
			return fn(cmd, runner, comps)
		},
	}
}

func (a *app) compositeCmd() *cobra.Command {
	cmd := a.compositeStep("composite", "Build interval composites and write label maps",
		"composite", func(cmd *cobra.Command, r *workflow.Runner, comps []dynamicworld.Composite) error {
			paths, err := r.WriteComposites(cmd.Context(), comps)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		})

	var reduceOnly bool
	cmd.Flags().BoolVar(&reduceOnly, "reduce", false, "reduce every band with the configured method instead of building label composites")
	inner := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !reduceOnly {
			return inner(cmd, args)
		}
		ctx, runner, done, err := a.session(cmd.Context(), "reduce")
		if err != nil {
			return err
		}
		defer done()
		out, err := runner.Reduce(ctx)
		if err != nil {
			return err
		}
		for _, im := range out.Images() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", im.ID, im.BandNames())
		}
		return nil
	}
	return cmd
}

func (a *app) animateCmd() *cobra.Command {
	return a.compositeStep("animate", "Write an animated GIF of the composites",
		"animate", func(cmd *cobra.Command, r *workflow.Runner, comps []dynamicworld.Composite) error {
			path, err := r.Animate(cmd.Context(), comps)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		})
}

func (a *app) chartCmd() *cobra.Command {
	return a.compositeStep("chart", "Plot class coverage over time",
		"chart", func(cmd *cobra.Command, r *workflow.Runner, comps []dynamicworld.Composite) error {
			path, err := r.Chart(cmd.Context(), comps)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		})
}

func (a *app) compareCmd() *cobra.Command {
	return a.compositeStep("compare", "Assess composites by stratified sampling or reference points",
		"compare", func(cmd *cobra.Command, r *workflow.Runner, comps []dynamicworld.Composite) error {
			results, err := r.Compare(cmd.Context(), comps)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-23s %-16s %-10s %8s %8s %8s\n", "interval", "reference", "prediction", "samples", "accuracy", "kappa")
			for _, res := range results {
				fmt.Fprintf(w, "%-23s %-16s %-10s %8d %8.3f %8.3f\n",
					res.Interval, res.Reference, res.Prediction, res.Samples, res.Accuracy, res.Kappa)
			}
			return nil
		})
}

func (a *app) changeCmd() *cobra.Command {
	return a.compositeStep("change", "Report land-cover change between the first and last composites",
		"change", func(cmd *cobra.Command, r *workflow.Runner, comps []dynamicworld.Composite) error {
			report, err := r.Change(cmd.Context(), comps)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s -> %s: %.1f%% of %d pixels changed\n", report.From, report.To, report.Changed*100, report.Pixels)
			for i, label := range report.Labels {
				fmt.Fprintf(w, "%-20s %8.3f km2 -> %8.3f km2\n", label, report.Before.AreaKm2[i], report.After.AreaKm2[i])
			}
			return nil
		})
}
