package processloopd

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeycumines/go-processloop/internal/heartbeat"
	"github.com/joeycumines/go-processloop/processloop"
	"github.com/joeycumines/logiface"
)

// ProcessName identifies the heartbeat loop in process mode.
const ProcessName = "processloopd"

const shutdownTimeout = 5 * time.Second

// childArgs are parsed by the child process, which re-executes the parent's
// command line.
var childArgs = func() []string { return os.Args[1:] }

// child is the daemon built by the registered factory, in a child process.
var child *daemon

func init() {
	processloop.Register(ProcessName, newChildLoop)
}

type daemon struct {
	app      *heartbeat.App
	logger   *logiface.Logger[logiface.Event]
	shutdown func(context.Context) error
}

func newDaemon(ctx context.Context, cfg Config, w io.Writer) (*daemon, error) {
	logger, err := NewLogger(w, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	signals, err := cfg.signals()
	if err != nil {
		return nil, err
	}

	tp, shutdown, err := setupTracing(ctx, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}

	app, err := heartbeat.New(heartbeat.Config{
		Logger:       logger,
		SettingsPath: cfg.SettingsPath,
		PIDFile:      cfg.PIDFile,
		MetricsFile:  cfg.MetricsFile,
		MaxTicks:     cfg.MaxTicks,
	},
		processloop.WithFrameInterval(cfg.FrameInterval),
		processloop.WithSuppressErrors(cfg.SuppressErrors),
		processloop.WithSignals(signals...),
		processloop.WithTracerProvider(tp),
		processloop.WithProcessName(ProcessName),
	)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	return &daemon{
		app:      app,
		logger:   logger,
		shutdown: shutdown,
	}, nil
}

func (d *daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(d.app.Close(), d.shutdown(ctx))
}

// Run starts the heartbeat daemon, and blocks until it exits.
//
// Inline mode binds signals for the duration of the loop. Thread and process
// modes relay signals to the loop, as a supervisor would: SIGTERM and SIGINT
// join it, while SIGHUP reloads settings. Cancellation of ctx interrupts the
// loop, skipping cleanup.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, os.Stderr)
}

func run(ctx context.Context, cfg Config, w io.Writer) error {
	d, err := newDaemon(ctx, cfg, w)
	if err != nil {
		return err
	}
	defer func() {
		if e := d.Close(); e != nil {
			d.logger.Warning().Err(e).Log("shutdown failed")
		}
	}()

	d.logger.Info().Str("mode", cfg.Mode).Log("starting processloopd")

	switch cfg.Mode {
	case ModeThread:
		return d.runThread(ctx)
	case ModeProcess:
		return d.runProcess(ctx)
	default:
		return d.app.Loop().Start(ctx)
	}
}

func (d *daemon) runThread(ctx context.Context) error {
	loop := d.app.Loop()

	sigCh := make(chan os.Signal, 128)
	signal.Notify(sigCh, loop.Signals()...)
	defer signal.Stop(sigCh)

	worker := loop.StartThreaded(ctx, false, false)

	for {
		select {
		case sig := <-sigCh:
			loop.HandleSignal(sig)

		case <-worker.Done():
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(worker.Wait(), processloop.WaitWorkers(ctx))
		}
	}
}

func (d *daemon) runProcess(ctx context.Context) error {
	loop := d.app.Loop()

	sigCh := make(chan os.Signal, 128)
	signal.Notify(sigCh, loop.Signals()...)
	defer signal.Stop(sigCh)

	p, err := loop.StartProcess(false)
	if err != nil {
		return err
	}
	d.logger.Info().Int("pid", p.Pid()).Log("started loop process")

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				return loop.Join()
			}
			if err := p.Signal(sig); err != nil {
				d.logger.Warning().
					Err(err).
					Str("signal", processloop.SignalName(sig)).
					Log("failed to forward signal")
			}

		case <-ctx.Done():
			return loop.Join()

		case <-p.Done():
			return p.Wait()
		}
	}
}

func newChildLoop() (*processloop.Loop, error) {
	cfg, err := ParseConfig(flag.NewFlagSet(ProcessName, flag.ContinueOnError), childArgs())
	if err != nil {
		return nil, err
	}
	d, err := newDaemon(context.Background(), cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	child = d
	return d.app.Loop(), nil
}

// RunChild runs the heartbeat loop, if the current process was spawned by
// process mode. See processloop.RunChild.
func RunChild(ctx context.Context) (bool, error) {
	ok, err := processloop.RunChild(ctx)
	if child != nil {
		err = errors.Join(err, child.Close())
	}
	return ok, err
}
