// Package cfg persists the sampler's operator-facing configuration: the
// rate curve that the kernel package's RateCurveMap would otherwise need
// to be wired up from a kprobe loader's command-line flags every time.
// The readiness flag is not persisted here; the run command sets it. Layout follows credentials.go's
// pattern in spirit: a YAML file in a per-user config directory, backed
// by a dedicated viper instance so it doesn't collide with the command
// tree's own flag-bound viper keys, with environment variable overrides
// for container deployments where writing to $HOME isn't an option.
package cfg

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/flowacctd/conntracct/internal/kernel"
)

var curveCfg = viper.New()

const curveFileName = "curve"

func init() {
	initCfgDir()
	initCurveCfg()
}

func initCurveCfg() {
	curveCfg.SetConfigType("yaml")
	curveCfg.AddConfigPath(cfgDir)
	curveCfg.SetConfigName(curveFileName)
	curveCfg.SetDefault("points", defaultCurvePoints())

	curveCfg.AutomaticEnv()
	curveCfg.SetEnvPrefix("conntracct")

	if err := curveCfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Failed to read curve config: %v\n", err)
		}
	}
}

// curvePointCfg is the on-disk shape of one curve point; YAML-friendly
// field names, unlike kernel.CurvePoint's nanosecond-precision internal
// fields.
type curvePointCfg struct {
	AgeSeconds      float64 `mapstructure:"age_seconds" yaml:"age_seconds"`
	IntervalSeconds float64 `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

func defaultCurvePoints() []curvePointCfg {
	return []curvePointCfg{
		{AgeSeconds: 0, IntervalSeconds: 1},
		{AgeSeconds: 10, IntervalSeconds: 5},
		{AgeSeconds: 60, IntervalSeconds: 30},
	}
}

// GetCurvePointsConfigPath returns where the curve config file lives (or
// would be written to).
func GetCurvePointsConfigPath() string {
	return cfgDir + string(os.PathSeparator) + curveFileName + ".yaml"
}

// LoadCurve reads the configured rate curve and returns the
// kernel.CurvePoint slice RateCurveMap.SetCurve expects, already
// converted from seconds to nanoseconds.
func LoadCurve() ([]kernel.CurvePoint, error) {
	var points []curvePointCfg
	if err := curveCfg.UnmarshalKey("points", &points); err != nil {
		return nil, errors.Wrap(err, "failed to parse curve config")
	}
	if len(points) == 0 {
		points = defaultCurvePoints()
	}

	out := make([]kernel.CurvePoint, len(points))
	for i, p := range points {
		out[i] = kernel.CurvePoint{
			AgeNS:      uint64(p.AgeSeconds * 1e9),
			IntervalNS: uint64(p.IntervalSeconds * 1e9),
		}
	}
	return out, nil
}

// WriteCurve persists points (in seconds) to the curve config file,
// creating it if necessary. Variadic so callers can pass NewCurvePoint
// results directly without naming the unexported point type.
func WriteCurve(points ...curvePointCfg) error {
	path := GetCurvePointsConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0600); err != nil {
			return errors.Wrapf(err, "failed to create %s", path)
		} else {
			f.Close()
		}
	} else if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	curveCfg.Set("points", points)
	return curveCfg.WriteConfig()
}

// NewCurvePoint is the exported constructor callers outside this package
// (e.g. the configure subcommand) use to build entries for WriteCurve.
func NewCurvePoint(ageSeconds, intervalSeconds float64) curvePointCfg {
	return curvePointCfg{AgeSeconds: ageSeconds, IntervalSeconds: intervalSeconds}
}
