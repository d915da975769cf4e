// Package configure implements the subcommand that writes the rate
// curve the daemon loads on startup.
package configure

import (
	"github.com/spf13/cobra"

	"github.com/flowacctd/conntracct/cfg"
	"github.com/flowacctd/conntracct/cmd/internal/cmderr"
	"github.com/flowacctd/conntracct/printer"
)

var (
	c0AgeFlag, c0IntervalFlag float64
	c1AgeFlag, c1IntervalFlag float64
	c2AgeFlag, c2IntervalFlag float64
)

var Cmd = &cobra.Command{
	Use:          "configure",
	Short:        "Write the rate curve the daemon samples against.",
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := writeCurve(); err != nil {
			return cmderr.Err{Err: err}
		}
		printer.Infof("wrote rate curve to %s\n", cfg.GetCurvePointsConfigPath())
		return nil
	},
}

func init() {
	Cmd.Flags().Float64Var(&c0AgeFlag, "c0-age", 0, "Age in seconds at which the first curve step begins")
	Cmd.Flags().Float64Var(&c0IntervalFlag, "c0-interval", 1, "Update interval in seconds for flows between c0-age and c1-age")
	Cmd.Flags().Float64Var(&c1AgeFlag, "c1-age", 10, "Age in seconds at which the second curve step begins")
	Cmd.Flags().Float64Var(&c1IntervalFlag, "c1-interval", 5, "Update interval in seconds for flows between c1-age and c2-age")
	Cmd.Flags().Float64Var(&c2AgeFlag, "c2-age", 60, "Age in seconds at which the third curve step begins")
	Cmd.Flags().Float64Var(&c2IntervalFlag, "c2-interval", 30, "Update interval in seconds for flows at or past c2-age")
}

func writeCurve() error {
	return cfg.WriteCurve(
		cfg.NewCurvePoint(c0AgeFlag, c0IntervalFlag),
		cfg.NewCurvePoint(c1AgeFlag, c1IntervalFlag),
		cfg.NewCurvePoint(c2AgeFlag, c2IntervalFlag),
	)
}
