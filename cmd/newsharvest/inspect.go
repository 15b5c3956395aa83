package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/timestamp"
	"github.com/pevans/newsharvest/window"
)

func (a *app) newWindowCmd() *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Print the acceptance window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now(nowFlag)
			if err != nil {
				return err
			}
			w := window.ForCutover(now, a.cfg.Window.CutoverHour)
			fmt.Fprintf(cmd.OutOrStdout(), "start: %s\n", w.Start.Format(windowLayout))
			fmt.Fprintf(cmd.OutOrStdout(), "end:   %s\n", w.End.Format(windowLayout))
			return nil
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "reference time (default: current time)")
	return cmd
}

const windowLayout = "2006/01/02 15:04:05.000000 MST"

func (a *app) newNormalizeCmd() *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "normalize <text>...",
		Short: "Normalize timestamp text the way comment times are read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.now(nowFlag)
			if err != nil {
				return err
			}
			table := make([][]string, 0, len(args))
			for _, text := range args {
				r := timestamp.Normalize(text, now)
				table = append(table, []string{text, r.Time.Format("2006/01/02 15:04:05"), r.Kind.String()})
			}
			return a.printer.Table([]string{"Text", "Time", "Kind"}, table)
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "reference time (default: current time)")
	return cmd
}

func (a *app) newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger.DSN == "" {
				return errors.New("ledger is disabled: set ledger.dsn")
			}
			store, err := ledger.NewStore(a.cfg.Ledger.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				a.printer.Print("No runs recorded.")
				return nil
			}

			table := make([][]string, 0, len(runs))
			for _, run := range runs {
				table = append(table, runRow(run))
			}
			return a.printer.Table([]string{"Run", "Started", "Status", "Records", "Failures", "Output"}, table)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func runRow(run ledger.Run) []string {
	output := run.Output
	if run.RemoteID != "" {
		output = "drive:" + run.RemoteID
	}
	return []string{
		run.RunID.String()[:8],
		run.StartedAt.Format("2006/01/02 15:04"),
		run.Status,
		strconv.Itoa(run.Records),
		strconv.Itoa(run.Failures),
		output,
	}
}
