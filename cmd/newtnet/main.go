// Newtnet applies deferred switch networking actions.
//
// Upstream services journal networking actions (attach a NIC to a network on
// a channel, detach it, revert a port) into the database. Newtnet drains that
// journal in order, driving each switch through its console or local CLI, and
// records the resulting network attachments.
//
//	newtnet serve                         # drain continuously, expose /metrics
//	newtnet drain                         # one pass, then exit
//	newtnet migrate                       # apply schema migrations
//	newtnet actions list --status ERROR   # journal entries that failed
//	newtnet actions audit --last 24h      # audit trail
//	newtnet switch verify sw0             # compare recorded attachments with hardware
//	newtnet switch port-networks sw0 gi1/0/3
//	newtnet config show                   # effective configuration
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtnet/pkg/settings"
	"github.com/newtron-network/newtnet/pkg/util"
	"github.com/newtron-network/newtnet/pkg/version"
)

// errDrift is returned by verify when hardware and the store disagree, so
// the process exits 2 rather than 1.
var errDrift = errors.New("switch configuration drifted")

// App holds the flags and configuration shared by all commands.
type App struct {
	configPath string
	verbose    bool
	jsonOutput bool

	settings *settings.Settings
}

var app = &App{}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errDrift) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "newtnet",
		Short:             "Deferred switch networking daemon",
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		Long: `Newtnet drains the networking action journal onto physical switches.

Each pending action is applied to the switch its NIC is cabled to, in journal
order, and committed as DONE or ERROR together with the resulting network
attachment. One session per switch is kept open for the length of a pass.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", settings.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")

	rootCmd.AddCommand(
		newServeCmd(),
		newDrainCmd(),
		newMigrateCmd(),
		newActionsCmd(),
		newSwitchCmd(),
		newConfigCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				if version.Version == "dev" {
					fmt.Println("newtnet dev build (set version with -ldflags)")
				} else {
					fmt.Printf("newtnet %s\n", version.Info())
				}
			},
		},
	)
	return rootCmd
}

// load reads the configuration and sets up logging.
func (a *App) load() error {
	s, err := settings.Load(a.configPath)
	if err != nil {
		return err
	}
	a.settings = s

	level := s.Log.Level
	if level == "" {
		level = "info"
	}
	if a.verbose {
		level = "debug"
	}
	if err := util.SetLogLevel(level); err != nil {
		return err
	}
	return util.SetLogFormat(s.Log.Format)
}
