package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowacctd/conntracct/cmd/internal/cmderr"
	"github.com/flowacctd/conntracct/cmd/internal/configure"
	"github.com/flowacctd/conntracct/cmd/internal/run"
	"github.com/flowacctd/conntracct/printer"
	"github.com/flowacctd/conntracct/util"
	"github.com/flowacctd/conntracct/version"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:           "conntracctd",
	Short:         "Flow-accounting sampler daemon for Linux connection tracking.",
	Long:          "conntracctd samples conntrack flow counters under a curve-based rate limit and forwards UPDATE/END events to a collector pipeline.",
	Version:       version.DisplayString(),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		if _, isOurErr := err.(cmderr.Err); !isOurErr {
			cmd.Println(cmd.UsageString())
		}

		exitCode := 1
		var exitErr util.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode
		}
		printer.Stderr.Errorf("%s\n", err)
		os.Exit(exitCode)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "If set, outputs detailed information for debugging.")
	rootCmd.PersistentFlags().MarkHidden("debug")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(run.Cmd)
	rootCmd.AddCommand(configure.Cmd)
}
