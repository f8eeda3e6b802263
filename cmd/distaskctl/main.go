package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/distask/internal/config"
	"github.com/danmuck/distask/internal/driver"
	_ "github.com/danmuck/distask/internal/libraries/linalg"
	"github.com/danmuck/distask/internal/logging"
	"github.com/danmuck/distask/internal/matrix"
	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/protocol/session"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

type options struct {
	config  string
	library string
	task    string
	rows    uint64
	cols    uint64
	alpha   float64
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "cmd/distaskctl/config.toml", "driver config path")
	flag.StringVar(&opts.library, "library", "linalg", "library to run the task from")
	flag.StringVar(&opts.task, "task", "transpose-shape", "task to run against the sample matrix")
	flag.Uint64Var(&opts.rows, "rows", 100, "sample matrix rows")
	flag.Uint64Var(&opts.cols, "cols", 4, "sample matrix columns")
	flag.Float64Var(&opts.alpha, "alpha", 0, "alpha input for tasks that take one; zero omits it")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "distaskctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) (err error) {
	logging.ConfigureRuntime()
	cfg, err := config.LoadDriverConfig(opts.config)
	if err != nil {
		return err
	}
	logCfg := logging.Active()
	logCfg.Level = cfg.LogLevel
	logCfg.Dir = cfg.LogDir
	logging.Override(logCfg)

	sink, err := logging.Open("driver", cfg.LogDir)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()

	sessionCfg := session.DefaultConfig()
	sessionCfg.ReplyTimeout = cfg.ReplyTimeout
	d, err := driver.New(driver.Config{
		Workers: cfg.Workers,
		Policy:  cfg.Policy,
		Session: sessionCfg,
		Log:     sink.Logger,
	})
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, d.Close()) }()

	for _, lib := range cfg.Libraries {
		if _, err := d.Load(ctx, lib.Name, lib.Path); err != nil {
			return err
		}
	}

	a, err := d.RegisterMatrix(matrix.Spec{Name: "A", Rows: opts.rows, Cols: opts.cols}, sample(opts.rows, opts.cols))
	if err != nil {
		return err
	}
	in := params.New()
	if err := params.Add(in, "A", a.ID); err != nil {
		return err
	}
	if opts.alpha != 0 {
		if err := params.Add(in, "alpha", opts.alpha); err != nil {
			return err
		}
	}

	res, err := d.Run(ctx, opts.library, opts.task, in)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return fmt.Errorf("%s/%s: %s: %w", opts.library, opts.task, res.Status, res.Err)
	}
	fmt.Printf("request %s status %s\n", res.RequestID, res.Status)
	fmt.Printf("outputs %s\n", res.Outputs.Render())
	for _, desc := range res.Adopted {
		fmt.Printf("registered %s\n", desc)
	}

	for _, lib := range cfg.Libraries {
		if err := d.Unload(ctx, lib.Name); err != nil {
			return err
		}
	}
	return nil
}

// sample fills a rows x cols matrix with 1..rows*cols.
func sample(rows, cols uint64) *mat.Dense {
	if rows == 0 || cols == 0 || rows*cols > 1<<20 {
		return nil
	}
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i + 1)
	}
	return mat.NewDense(int(rows), int(cols), data)
}
