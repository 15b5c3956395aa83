package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/timestamp"
)

// app carries the state shared by every subcommand.
type app struct {
	cfgFile  string
	logLevel string
	noColor  bool

	cfg     *config.Config
	loc     *time.Location
	log     *logger.Logger
	printer *Printer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "newsharvest",
		Short: "Harvest news articles and comment threads into a workbook",
		Long: `newsharvest reads a table of news URLs, keeps the rows published in the
current editorial day, and saves each article with its comment thread into a
dated workbook. The workbook can be uploaded to a Drive folder.

Example usage:
  newsharvest run                          # harvest today's window
  newsharvest run --now "2024/05/10 12:00" # harvest as of a fixed time
  newsharvest window                       # print the acceptance window
  newsharvest normalize "5分前" "2024/5/9 15:00"
  newsharvest runs --limit 5               # list recorded runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.newsharvest/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, or error")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.newRunCmd(),
		a.newWindowCmd(),
		a.newNormalizeCmd(),
		a.newRunsCmd(),
	)
	return root
}

// init loads the configuration: file, then environment, then flags.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.loc = loc
	a.log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)
	a.printer = NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), ResolveColors(a.noColor))

	a.log.Debug("configuration loaded",
		"source", cfg.Source.Kind,
		"fetch_mode", cfg.Fetch.Mode,
		"timezone", cfg.Window.Timezone,
		"cutover_hour", cfg.Window.CutoverHour,
	)
	return nil
}

// now returns the reference instant: the --now value when given, otherwise
// the current time, in the configured location.
func (a *app) now(flag string) (time.Time, error) {
	current := time.Now().In(a.loc)
	if flag == "" {
		return current, nil
	}

	r := timestamp.Normalize(flag, current)
	if r.Kind != timestamp.Absolute {
		return time.Time{}, fmt.Errorf("invalid --now %q: expected a date such as 2024/05/10 12:00", flag)
	}
	return r.Time, nil
}
