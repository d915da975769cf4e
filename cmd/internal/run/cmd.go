// Package run implements the daemon's main subcommand: attach a flow
// source, wire it through the sampler, and drain both rings into a
// collector pipeline until interrupted.
package run

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowacctd/conntracct/cfg"
	"github.com/flowacctd/conntracct/cmd/internal/cmderr"
	"github.com/flowacctd/conntracct/internal/collector"
	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/flowacctd/conntracct/internal/probeio"
	"github.com/flowacctd/conntracct/internal/ring"
	"github.com/flowacctd/conntracct/internal/selfusage"
	"github.com/flowacctd/conntracct/printer"
	"github.com/flowacctd/conntracct/util"
)

var (
	sourceFlag        string
	conntrackPathFlag string
	pollIntervalFlag  time.Duration
	adminAddrFlag     string
	forwardURLFlag    string
	resolvePodsFlag   bool
	k8sNamespaceFlag  string
	instanceNameFlag  string
)

var Cmd = &cobra.Command{
	Use:          "run",
	Short:        "Run the flow-accounting sampler daemon.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := runDaemon(); err != nil {
			return cmderr.Err{Err: err}
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&sourceFlag, "source", "synthetic", `Flow source: "synthetic" or "procfs"`)
	Cmd.Flags().StringVar(&conntrackPathFlag, "conntrack-path", "/proc/net/nf_conntrack", "Path to the conntrack table when --source=procfs")
	Cmd.Flags().DurationVar(&pollIntervalFlag, "poll-interval", time.Second, "Poll interval when --source=procfs")
	Cmd.Flags().StringVar(&adminAddrFlag, "admin-addr", "127.0.0.1:9471", "Address the introspection HTTP server listens on")
	Cmd.Flags().StringVar(&forwardURLFlag, "forward-url", "", "If set, batches events and POSTs them to this URL")
	Cmd.Flags().BoolVar(&resolvePodsFlag, "resolve-pods", false, "Enrich events with the Kubernetes pod owning the source address")
	Cmd.Flags().StringVar(&k8sNamespaceFlag, "k8s-namespace", "", "Namespace to search when --resolve-pods is set (default: all namespaces)")
	Cmd.Flags().StringVar(&instanceNameFlag, "instance-name", "", "Human-readable name for this daemon instance (default: randomly generated)")
}

func runDaemon() error {
	if instanceNameFlag == "" {
		instanceNameFlag = util.RandomInstanceName()
	}
	printer.Infof("starting %s\n", instanceNameFlag)

	curvePoints, err := cfg.LoadCurve()
	if err != nil {
		return err
	}

	if len(curvePoints) != 3 {
		return errors.Errorf("rate curve must have exactly 3 points, got %d (run `conntracctd configure` first)", len(curvePoints))
	}
	curve := &kernel.RateCurveMap{}
	curve.SetCurve(curvePoints[0], curvePoints[1], curvePoints[2])

	config := &kernel.ConfigMap{}
	rings := ring.NewPair(ring.DefaultCapacity)

	cooldown := kernel.NewFlowCooldownMap()
	origin := kernel.NewFlowOriginMap()
	rl := kernel.NewRateLimiter(curve, cooldown, origin)
	sampler := kernel.NewSampler(rl, rings)
	probes := kernel.NewProbes(config, kernel.NewStashCurrentFlow(), sampler)
	config.SetReady(kernel.ReadyMagic)

	source, err := buildSource()
	if err != nil {
		return err
	}
	dispatch := probeio.NewDispatch(source, probes)

	sink, err := buildSink()
	if err != nil {
		return err
	}
	sweeper := collector.NewStaleFlowSweeper(sink)

	var pipeline collector.Collector = sweeper
	if resolvePodsFlag {
		lookup, err := buildPodLookup()
		if err != nil {
			return err
		}
		pipeline = collector.NewNetnsPodResolver(pipeline, lookup, 30*time.Second)
	}
	pipeline = collector.NewUploadThrottle(pipeline)

	admin := collector.NewAdminServer(adminAddrFlag, rings, sweeper, curve, cooldown, origin)
	admin.Start()

	if mon, err := selfusage.NewMonitor(); err != nil {
		printer.Debugf("self-usage monitoring unavailable: %v\n", err)
	} else {
		go reportUsagePeriodically(mon)
	}

	drainDone := make(chan struct{})
	go drainRings(rings, pipeline, sweeper, drainDone)

	waitForShutdown()

	dispatch.Stop()
	rings.Close()
	<-drainDone
	admin.Stop()
	return pipeline.Close()
}

func buildSource() (probeio.FlowSource, error) {
	switch sourceFlag {
	case "procfs":
		return probeio.NewProcfsSource(conntrackPathFlag, pollIntervalFlag), nil
	default:
		return probeio.NewSynthetic(probeio.SyntheticConfig{}), nil
	}
}

func buildSink() (collector.Collector, error) {
	if forwardURLFlag == "" {
		return collector.Func(func(ev kernel.AcctEvent) error {
			printer.V(4).Debugf("flow %d: %d/%d packets\n", ev.CPtr, ev.PacketsOrig, ev.PacketsRet)
			return nil
		}), nil
	}
	return collector.NewForwarder(forwardURLFlag), nil
}

func buildPodLookup() (collector.PodLookup, error) {
	clientset, err := newInClusterOrLocalClientset()
	if err != nil {
		return nil, err
	}
	return &collector.ClientsetPodLookup{Clientset: clientset, Namespace: k8sNamespaceFlag}, nil
}

// drainRings forwards both rings into sink, keeping sweeper's bookkeeping
// in sync with which ring an event actually came from: the update ring
// arms/rearms a flow's eviction timer the normal way, but an event off the
// end ring is a real END the kernel already told us about, so once it has
// been forwarded drainRings clears that flow's sweeper entry directly
// rather than letting sweeper.Process treat it as just another update.
// Without this split every normally-terminated flow's END would be
// replayed a second time when its (needlessly still-armed) eviction timer
// later fires.
func drainRings(rings *ring.Pair, sink collector.Collector, sweeper *collector.StaleFlowSweeper, done chan struct{}) {
	defer close(done)
	updateCh := rings.Update.Events()
	endCh := rings.End.Events()
	for updateCh != nil || endCh != nil {
		select {
		case ev, ok := <-updateCh:
			if !ok {
				updateCh = nil
				continue
			}
			_ = sink.Process(ev)
		case ev, ok := <-endCh:
			if !ok {
				endCh = nil
				continue
			}
			_ = sink.Process(ev)
			sweeper.MarkEnded(ev.CPtr)
		}
	}
}

func reportUsagePeriodically(mon *selfusage.Monitor) {
	ticker := time.NewTicker(viper.GetDuration("usage-report-interval"))
	defer ticker.Stop()
	for range ticker.C {
		usage, err := mon.Sample()
		if err != nil {
			printer.Debugf("self-usage sample failed: %v\n", err)
			continue
		}
		printer.V(2).Debugf("self usage: cpu=%.4f vmpeak=%dkB\n", usage.RelativeCPU, usage.VMPeak)
	}
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	printer.Infoln("shutting down")
}

func init() {
	viper.SetDefault("usage-report-interval", 30*time.Second)
}
