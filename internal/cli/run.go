package cli

import (
	stdcontext "context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/forkrun/internal/cliutil"
	"github.com/Paintersrp/forkrun/internal/config"
	"github.com/Paintersrp/forkrun/internal/metrics"
	forkrt "github.com/Paintersrp/forkrun/internal/runtime"
	"github.com/Paintersrp/forkrun/internal/tui"
)

// errWorkersFailed is wrapped by run when at least one worker exited with a
// nonzero status.
var errWorkersFailed = errors.New("workers failed")

type runOptions struct {
	workers        int
	listenInterval time.Duration
	stopTimeout    time.Duration
	metricsAddr    string
	jsonLogs       bool
	tui            bool
}

func newRunCmd(ctx *context) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command as N prefork workers and wait for them",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, doc, opts, args); err != nil {
				return err
			}
			if opts.tui && !supportsInteractiveOutput(cmd) {
				return fmt.Errorf("--tui requires an interactive terminal")
			}
			return runWorkers(cmd, doc, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.workers, "workers", "n", 0, "Number of workers (overrides workers.count)")
	flags.DurationVar(&opts.listenInterval, "listen-interval", 0, "Poll for exits at this interval instead of blocking (overrides listen.interval)")
	flags.DurationVar(&opts.stopTimeout, "stop-timeout", 0, "Grace period between SIGTERM and SIGKILL on interrupt (overrides workers.stopTimeout)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides metrics.listen)")
	flags.BoolVar(&opts.jsonLogs, "json", false, "Emit runtime events as JSON lines")
	flags.BoolVar(&opts.tui, "tui", false, "Show a live view of the workers")

	return cmd
}

// applyRunFlags overrides file values with explicitly set flags and the
// positional command, then validates the result.
func applyRunFlags(cmd *cobra.Command, doc *config.File, opts runOptions, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		doc.Workers.Count = opts.workers
	}
	if flags.Changed("listen-interval") {
		doc.Listen.Interval = config.Duration{Duration: opts.listenInterval}
	}
	if flags.Changed("stop-timeout") {
		doc.Workers.StopTimeout = config.Duration{Duration: opts.stopTimeout}
	}
	if flags.Changed("metrics-addr") {
		doc.Metrics.Listen = opts.metricsAddr
	}
	if len(args) > 0 {
		doc.Workers.Command = append([]string(nil), args...)
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if len(doc.Workers.Command) == 0 {
		return errors.New("no command given: pass one after -- or set workers.command")
	}
	return nil
}

func runWorkers(cmd *cobra.Command, doc *config.File, opts runOptions) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = stdcontext.Background()
	}
	runCtx, cancel := stdcontext.WithCancel(baseCtx)
	defer cancel()

	stderr := cmd.ErrOrStderr()

	if doc.Metrics.Listen != "" {
		stopMetrics, err := startMetricsServer(doc.Metrics.Listen, stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := stopMetrics(); err != nil {
				fmt.Fprintf(stderr, "metrics server: %v\n", err)
			}
		}()
	}

	var ui *tui.UI
	if opts.tui {
		ui = tui.New()
	}

	events := make(chan forkrt.Event, 64)
	summary := newRunSummary()
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		consumeRunEvents(events, summary, ui, opts.jsonLogs, stderr)
	}()

	rt := forkrt.New(
		forkrt.WithConfig(doc.Runtime),
		forkrt.WithEvents(events),
		forkrt.WithOutput(stderr),
	)

	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		defer close(events)
		superviseWorkers(runCtx, rt, doc)
	}()

	if ui != nil {
		go func() {
			select {
			case <-ui.Done():
				cancel()
			case <-supervised:
			}
		}()
		if err := ui.Run(runCtx); err != nil {
			cancel()
			<-supervised
			<-consumed
			return fmt.Errorf("tui: %w", err)
		}
	}

	<-supervised
	<-consumed

	if err := summary.render(cmd.OutOrStdout()); err != nil {
		return err
	}
	if failed := summary.failures(); failed > 0 {
		return fmt.Errorf("%d of %d %w", failed, summary.total(), errWorkersFailed)
	}
	return nil
}

// superviseWorkers spawns the workers and reaps them until none is left.
// Cancelling ctx forwards SIGTERM and, after the stop timeout, SIGKILL.
func superviseWorkers(ctx stdcontext.Context, rt *forkrt.Runtime, doc *config.File) {
	spawnOpts := []forkrt.SpawnOption{
		forkrt.WithArgs(workerArgs(doc.Workers.ResolvedWorkdir, doc.Workers.Command)...),
		forkrt.WithEnv(workerEnv(doc.Workers.Env)...),
	}
	for i := 0; i < doc.Workers.Count; i++ {
		if ctx.Err() != nil {
			break
		}
		rt.ForkOnly(workerHandler, doc.Workers.Priority, spawnOpts...)
	}

	reaped := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardStop(ctx, rt, doc.Workers.StopTimeout.Duration, reaped)
	}()

	interval := doc.Listen.Interval.Duration
	if interval <= 0 {
		rt.Wait()
	} else {
		ticker := time.NewTicker(interval)
		for rt.Listen(); rt.Pending() > 0; rt.Listen() {
			<-ticker.C
		}
		ticker.Stop()
	}

	close(reaped)
	wg.Wait()
}

// forwardStop signals the worker groups once ctx is done and kills them when
// they outlive the timeout.
func forwardStop(ctx stdcontext.Context, rt *forkrt.Runtime, timeout time.Duration, reaped <-chan struct{}) {
	select {
	case <-reaped:
		return
	case <-ctx.Done():
	}
	_ = rt.SignalChildren(syscall.SIGTERM)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-reaped:
	case <-timer.C:
		_ = rt.SignalChildren(syscall.SIGKILL)
	}
}

func consumeRunEvents(events <-chan forkrt.Event, summary *runSummary, ui *tui.UI, jsonLogs bool, stderr io.Writer) {
	var enc *json.Encoder
	if jsonLogs {
		enc = json.NewEncoder(stderr)
	}
	if ui != nil {
		defer ui.Stop()
		defer ui.CloseEvents()
	}

	for evt := range events {
		metrics.Observe(evt)
		summary.apply(evt)
		switch {
		case ui != nil:
			ui.EventSink() <- evt
		case enc != nil:
			cliutil.EncodeLogEvent(enc, stderr, evt)
		default:
			fmt.Fprintln(stderr, cliutil.FormatEvent(evt))
		}
	}
}
