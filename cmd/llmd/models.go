package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func newPullCmd(opts *rootOpts) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "pull <model>",
		Short: "Download a model from the hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			id := args[0]
			out := cmd.OutOrStdout()
			err = app.reg.EnsureAvailable(cmd.Context(), id, force, func(f float64) {
				fmt.Fprintf(out, "\rpulling %s: %3.0f%%", id, f*100)
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			rec, err := app.reg.ModelInfo(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "pulled %s (%s) to %s\n",
				rec.ID, units.HumanSize(float64(rec.SizeBytes)), rec.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-fetch every file even if cached")
	return cmd
}

func newListCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List locally available models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			records, err := app.reg.ListAvailable()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSIZE\tACQUIRED")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					rec.ID,
					units.HumanSize(float64(rec.SizeBytes)),
					units.HumanDuration(time.Since(rec.AcquiredAt))+" ago")
			}
			return w.Flush()
		},
	}
}

func newInfoCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "info <model>",
		Short: "Show details for a local model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			rec, err := app.reg.ModelInfo(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:        %s\n", rec.ID)
			fmt.Fprintf(out, "path:      %s\n", rec.Path)
			fmt.Fprintf(out, "size:      %s (%d bytes)\n", units.HumanSize(float64(rec.SizeBytes)), rec.SizeBytes)
			fmt.Fprintf(out, "acquired:  %s\n", rec.AcquiredAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newRmCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <model>",
		Short: "Remove a model from the local store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			if err := app.reg.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
