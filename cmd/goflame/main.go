// Command goflame is the profiler's CLI entry point, matching the
// teacher's flag-based main() (profiler/main.go, perf_hacking/main.go)
// generalized to the full invocation surface of §6.1: target selection,
// duration, sampling mode, and the renderer knobs from §4.H's table
// except name_type, which is fixed to flamegraph.NameTypeFunction.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cropsey/goflame/internal/flamegraph"
	"github.com/cropsey/goflame/internal/loader"
	"github.com/cropsey/goflame/internal/logging"
	"github.com/cropsey/goflame/internal/metrics"
	"github.com/cropsey/goflame/internal/profilererr"
	"github.com/cropsey/goflame/internal/session"
)

const (
	exitSuccess         = 0
	exitInvalidArgs     = 2
	exitTargetNotFound  = 3
	exitProbeLoadFailed = 4
	exitOutputWriteFail = 5
	exitWatchdog        = 124
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("goflame", flag.ContinueOnError)

	pid := fs.Int("pid", 0, "PID of the target process")
	duration := fs.Duration("duration", 10*time.Second, "profiling duration")
	offCPU := fs.Bool("off-cpu", false, "capture off-CPU (sched_switch) samples instead of on-CPU")
	frequency := fs.Int("frequency", 99, "on-CPU sampling frequency in Hz")
	output := fs.String("output", "", "SVG output path; empty disables SVG rendering")
	exportFolded := fs.String("export-folded", "", "folded-stack text output path; empty disables")
	probeObject := fs.String("probe-object", "", "path to the compiled probe object (defaults to bpfprobe.DefaultObjectPath)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus /metrics on; empty disables")

	title := fs.String("title", "Flame Graph", "SVG header title")
	subtitle := fs.String("subtitle", "", "SVG header subtitle")
	colors := fs.String("colors", "hot", "color palette")
	bgcolors := fs.String("bgcolors", "", "background gradient, e.g. #eeeeee,#eeeeb0")
	width := fs.Int("width", 1200, "SVG width in pixels")
	height := fs.Int("height", 16, "row height in pixels")
	fontType := fs.String("fonttype", "Verdana", "SVG font family")
	fontSize := fs.Int("fontsize", 12, "SVG base font size")
	inverted := fs.Bool("inverted", false, "render icicle graph (root at top)")
	flameChart := fs.Bool("flamechart", false, "preserve input order instead of sorting (flame chart mode)")
	hash := fs.Bool("hash", false, "color by hash of function name")
	random := fs.Bool("random", false, "color randomly (breaks determinism)")

	if err := fs.Parse(args); err != nil {
		return exitInvalidArgs
	}

	log := logging.New(os.Stderr, *verbose)

	if *pid <= 0 {
		log.Error().Msg("--pid is required and must be positive")
		return exitInvalidArgs
	}
	if !*offCPU && *frequency <= 0 {
		log.Error().Msg("--frequency must be positive")
		return exitInvalidArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *metrics.Registry
	if *metricsAddr != "" {
		reg = metrics.New(log)
		shutdown := reg.Serve(*metricsAddr)
		defer func() { _ = shutdown(context.Background()) }()
	}

	backend := loader.NewEBPFBackend(*probeObject)

	req := session.Request{
		PID:         *pid,
		Duration:    *duration,
		OnCPU:       !*offCPU,
		OffCPU:      *offCPU,
		FrequencyHz: *frequency,
	}

	watchdog := time.AfterFunc(*duration+30*time.Second, func() {
		log.Error().Msg("internal watchdog exceeded session duration; exiting")
		os.Exit(exitWatchdog)
	})
	defer watchdog.Stop()

	res, err := session.Run(ctx, req, backend, log)
	if err != nil {
		return exitForError(log, err)
	}

	if reg != nil {
		session.ObserveMetrics(reg, res)
	}

	if *exportFolded != "" {
		if code := writeFolded(log, *exportFolded, res); code != exitSuccess {
			return code
		}
	}

	if *output != "" {
		cfg := flamegraph.Config{
			Title:      *title,
			Subtitle:   *subtitle,
			Colors:     flamegraph.Palette(*colors),
			BGColors:   *bgcolors,
			Width:      *width,
			HeightStep: *height,
			FontType:   *fontType,
			FontSize:   *fontSize,
			Inverted:   *inverted,
			FlameChart: *flameChart,
			Hash:       *hash,
			Random:     *random,
			RandomSeed: time.Now().UnixNano(),
			NameType:   flamegraph.NameTypeFunction,
		}
		if code := writeSVG(log, *output, res.Lines, cfg); code != exitSuccess {
			return code
		}
	}

	log.Info().Str("session_id", res.SessionID).Int("stacks", len(res.Lines)).Msg("session complete")
	return exitSuccess
}

func writeFolded(log zerolog.Logger, path string, res *session.Result) int {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open folded output")
		return exitOutputWriteFail
	}
	defer f.Close()

	if err := session.WriteFolded(f, res); err != nil {
		log.Error().Err(err).Msg("failed to write folded output")
		return exitOutputWriteFail
	}
	if err := f.Sync(); err != nil {
		log.Error().Err(err).Msg("failed to fsync folded output")
		return exitOutputWriteFail
	}
	return exitSuccess
}

func writeSVG(log zerolog.Logger, path string, lines []string, cfg flamegraph.Config) int {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open SVG output")
		return exitOutputWriteFail
	}
	defer f.Close()

	if err := flamegraph.Render(f, lines, cfg); err != nil {
		log.Error().Err(err).Msg("failed to render SVG")
		return exitOutputWriteFail
	}
	if err := f.Sync(); err != nil {
		log.Error().Err(err).Msg("failed to fsync SVG output")
		return exitOutputWriteFail
	}
	return exitSuccess
}

func exitForError(log zerolog.Logger, err error) int {
	kind, ok := profilererr.As(err)
	if !ok {
		log.Error().Err(err).Msg("session failed")
		return exitTargetNotFound
	}
	switch kind {
	case profilererr.KindInvalidArgs:
		return exitInvalidArgs
	case profilererr.KindTargetNotFound, profilererr.KindNotGoBinary:
		return exitTargetNotFound
	case profilererr.KindProbeLoad:
		return exitProbeLoadFailed
	case profilererr.KindOutputWriteFailed:
		return exitOutputWriteFail
	default:
		return exitTargetNotFound
	}
}
