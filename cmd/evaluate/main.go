// Command evaluate runs an offline evaluation of a template library and
// writes the per-prefix analysis CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/phillpas/ktm/internal/adapters/mq/worker"
	"github.com/phillpas/ktm/internal/adapters/report"
	app "github.com/phillpas/ktm/internal/app"
	"github.com/phillpas/ktm/internal/domain/library"
	"github.com/phillpas/ktm/internal/domain/model"
	"github.com/phillpas/ktm/internal/domain/template"
	"github.com/phillpas/ktm/pkg/logger"
)

type options struct {
	library       string
	against       string
	mode          string
	hertz         int
	sigma         int
	size          int
	fraction      float64
	minPrefix     int
	out           string
	plot          string
	workers       int
	jobTimeout    time.Duration
	seed          int64
	trimOvershoot bool
	bins          int
	logLevel      string
}

func parseFlags(fs *flag.FlagSet, args []string) (*options, error) {
	o := &options{}
	fs.StringVar(&o.library, "library", "Log_2D.csv", "Movement log the library is built from")
	fs.StringVar(&o.against, "against", "", "Movement log whose paths are scored against the library (default: leave-one-out)")
	fs.StringVar(&o.mode, "mode", string(model.Mode2D), "Projection mode: 1d or 2d")
	fs.IntVar(&o.hertz, "hz", 20, "Resampling rate in Hz")
	fs.IntVar(&o.sigma, "sigma", 7, "Gaussian kernel standard deviation in samples")
	fs.IntVar(&o.size, "size", 0, "Randomly trim the library to this many templates (0 keeps all)")
	fs.Float64Var(&o.fraction, "fraction", 0.1, "Share of the library drawn as leave-one-out candidates")
	fs.IntVar(&o.minPrefix, "min-prefix", 0, "Shortest prefix scored per candidate (default 4, or 2 with -against)")
	fs.StringVar(&o.out, "out", "analysis.csv", "Output CSV")
	fs.StringVar(&o.plot, "plot", "", "Optional PNG of accuracy against elapsed time")
	fs.IntVar(&o.workers, "workers", runtime.NumCPU(), "Number of concurrent workers")
	fs.DurationVar(&o.jobTimeout, "job-timeout", 0, "Abort a candidate that takes longer than this (0 disables)")
	fs.Int64Var(&o.seed, "seed", 0, "Random seed for trimming and sampling (0 is time based)")
	fs.BoolVar(&o.trimOvershoot, "trim-overshoot", false, "Build profiles from the productive prefix only")
	fs.IntVar(&o.bins, "bins", report.DefaultBins, "Number of elapsed-time bins in the summary")
	fs.StringVar(&o.logLevel, "log-level", "info", "Log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if _, err := model.ParseMode(o.mode); err != nil {
		return nil, err
	}
	if o.hertz <= 0 {
		return nil, fmt.Errorf("hz must be positive, got %d", o.hertz)
	}
	if o.sigma < 0 {
		return nil, fmt.Errorf("sigma must not be negative, got %d", o.sigma)
	}
	if o.jobTimeout < 0 {
		return nil, fmt.Errorf("job-timeout must not be negative, got %s", o.jobTimeout)
	}
	if o.fraction <= 0 || o.fraction > 1 {
		return nil, fmt.Errorf("fraction must be in (0, 1], got %g", o.fraction)
	}
	return o, nil
}

func (o *options) evaluateOptions() library.EvaluateOptions {
	opts := library.DefaultEvaluateOptions()
	if o.against != "" {
		opts = library.DefaultAgainstOptions()
	}
	opts.Fraction = o.fraction
	if o.minPrefix > 0 {
		opts.MinPrefix = o.minPrefix
	}
	return opts
}

func run(ctx context.Context, o *options) (report.Summary, error) {
	log := logger.Get()
	mode, _ := model.ParseMode(o.mode)
	libOpts := []library.Option{
		library.WithConfig(template.Config{Hertz: o.hertz, KernelStdDev: o.sigma}),
		library.WithMode(mode),
		library.WithTrimOvershoot(o.trimOvershoot),
		library.WithSeed(o.seed),
		library.WithLogger(log.Named("library")),
	}

	lib, err := library.LoadSized(ctx, o.library, o.size, libOpts...)
	if err != nil {
		return report.Summary{}, err
	}
	var against *library.Library
	if o.against != "" {
		if against, err = library.Load(ctx, o.against, libOpts...); err != nil {
			return report.Summary{}, err
		}
	}

	rows, err := app.Evaluate(ctx, lib, against, o.evaluateOptions(), o.workers,
		worker.WithJobTimeout(o.jobTimeout))
	if err != nil {
		return report.Summary{}, err
	}
	if err := report.WriteRowsFile(o.out, rows); err != nil {
		return report.Summary{}, err
	}

	sum := report.Summarize(rows, o.bins)
	if o.plot != "" {
		if err := report.SavePlot(o.plot, sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	o, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	if err := logger.SetLevelString(o.logLevel); err != nil {
		log.Warn(context.Background(), "invalid log level; using info", logger.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	sum, err := run(ctx, o)
	if err != nil {
		log.Error(ctx, "evaluation failed", logger.Error(err))
		stop()
		os.Exit(1)
	}

	log.Info(ctx, "evaluation written",
		logger.String("out", o.out),
		logger.String("plot", o.plot),
		logger.Int("rows", sum.Rows),
		logger.Int("candidates", sum.Candidates),
		logger.Float64("hitRate", sum.HitRate),
		logger.Float64("meanError2D", sum.MeanError2D),
		logger.Duration("elapsed", time.Since(start)),
	)
}
