package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/phillpas/ktm/internal/replay"
)

func main() {
	var (
		baseURL   = flag.String("url", replay.DefaultBaseURL, "Base URL of the service")
		logPath   = flag.String("log", "Log_2D.csv", "Movement log to replay")
		tracePath = flag.String("trace", "trace.csv", "Output trace CSV (empty disables it)")
		mode      = flag.String("mode", "", "Projection mode 1d or 2d (default: server setting)")
		workers   = flag.Int("workers", 1, "Number of concurrent sessions")
		speed     = flag.Float64("speed", 0, "Playback speed, 1 is real time, 0 sends without delay")
		hitRadius = flag.Float64("hit-radius", replay.DefaultHitRadius, "Radius counted as a final hit")
		timeout   = flag.Duration("timeout", replay.DefaultTimeout, "HTTP request timeout")
		logFile   = flag.String("logfile", "", "Also write log output to this file")
		verbose   = flag.Bool("verbose", false, "Log every replayed path")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	if err := replay.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config := &replay.Config{
		BaseURL:   *baseURL,
		LogPath:   *logPath,
		TracePath: *tracePath,
		Mode:      *mode,
		Workers:   *workers,
		Speed:     *speed,
		HitRadius: *hitRadius,
		Timeout:   *timeout,
		Verbose:   *verbose,
	}

	if _, err := replay.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
