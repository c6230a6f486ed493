// Package heartbeat is a reference application of the processloop package:
// a daemon that logs a heartbeat every tick, reloads its settings on
// request, and exports its loop metrics on the way out.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/joeycumines/go-processloop/iana"
	"github.com/joeycumines/go-processloop/internal/pidfile"
	"github.com/joeycumines/go-processloop/loopmetrics"
	"github.com/joeycumines/go-processloop/processloop"
	"github.com/joeycumines/logiface"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrInjectedFailure is returned by the heartbeats selected by
// Settings.FailEvery. It never ends the loop.
var ErrInjectedFailure = errors.New("heartbeat: injected failure")

// maxSequence keeps sequence numbers packable at the default width.
const maxSequence = 1<<iana.DefaultWidth - 1

// Config configures New.
type Config struct {
	Logger *logiface.Logger[logiface.Event]

	// Registry receives the loop metrics, and is written to MetricsFile on
	// cleanup. A new registry is used if nil.
	Registry *prometheus.Registry

	SettingsPath string
	PIDFile      string
	MetricsFile  string

	// MaxTicks stops the loop after that many heartbeats, zero disables.
	MaxTicks uint64
}

// App owns a heartbeat loop.
type App struct {
	cfg      Config
	loop     *processloop.Loop
	settings Settings
	pidfile  *pidfile.File
	// set by setup, consumed by the startup update
	fresh    bool
	ticks    atomic.Uint64
	failures atomic.Uint64
	reloads  atomic.Uint64
}

// New builds the app and its loop. The given options are applied after the
// ones derived from cfg.
func New(cfg Config, opts ...processloop.Option) (*App, error) {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	metrics, err := loopmetrics.New(cfg.Registry, loopmetrics.Options{Namespace: "processloopd"})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg}

	a.loop, err = processloop.New(a.hooks(), append([]processloop.Option{
		processloop.WithLogger(cfg.Logger),
		processloop.WithObserver(metrics),
	}, opts...)...)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Loop returns the loop driving the app.
func (a *App) Loop() *processloop.Loop { return a.loop }

// Ticks returns the number of heartbeats so far.
func (a *App) Ticks() uint64 { return a.ticks.Load() }

// Failures returns the number of injected failures so far.
func (a *App) Failures() uint64 { return a.failures.Load() }

// Reloads returns the number of successful settings reloads, e.g. on
// SIGHUP. The load performed by setup is not counted.
func (a *App) Reloads() uint64 { return a.reloads.Load() }

// Settings returns the active settings. It must not be called while the loop
// is running, except from a hook.
func (a *App) Settings() Settings { return a.settings }

// Close releases the pidfile, if it is still held, e.g. after an interrupt,
// which skips cleanup.
func (a *App) Close() error {
	if a.pidfile == nil {
		return nil
	}
	return a.pidfile.Remove()
}

func (a *App) hooks() processloop.Hooks {
	return processloop.Hooks{
		Setup:   a.setup,
		Tick:    a.tick,
		Update:  a.update,
		OnError: a.onError,
		Cleanup: a.cleanup,
		Exit:    a.exit,
		Signal:  a.signal,
	}
}

func (a *App) setup(ctx context.Context) error {
	if a.cfg.PIDFile != `` {
		f, err := pidfile.Create(a.cfg.PIDFile)
		if err != nil {
			return err
		}
		a.pidfile = f
	}

	settings, err := LoadSettings(a.cfg.SettingsPath)
	if err != nil {
		_ = a.Close()
		return err
	}
	a.settings = settings
	a.fresh = true
	a.logSettings()

	a.cfg.Logger.Info().
		Int("pid", os.Getpid()).
		Str("settings", a.cfg.SettingsPath).
		Log("heartbeat starting")

	return nil
}

func (a *App) update(ctx context.Context) error {
	if a.fresh {
		a.fresh = false
		return nil
	}

	settings, err := LoadSettings(a.cfg.SettingsPath)
	if err != nil {
		// keep the previous settings
		return err
	}
	a.settings = settings
	a.reloads.Add(1)
	a.logSettings()

	return nil
}

func (a *App) logSettings() {
	a.cfg.Logger.Debug().
		Str("message", a.settings.Message).
		Str("pen", a.settings.EnterpriseNumber.String()).
		Int("fail_every", a.settings.FailEvery).
		Log("settings loaded")
}

func (a *App) tick(ctx context.Context) error {
	seq := a.ticks.Add(1)

	id, err := a.settings.EnterpriseNumber.Pack(seq%maxSequence, iana.DefaultWidth)
	if err != nil {
		return err
	}

	a.cfg.Logger.Info().
		Uint64("seq", seq).
		Uint64("id", id).
		Dur("previous", a.loop.PreviousTickDuration()).
		Log(a.settings.Message)

	if limit := a.cfg.MaxTicks; limit != 0 && seq >= limit {
		a.loop.Stop()
	}

	if every := a.settings.FailEvery; every > 0 && seq%uint64(every) == 0 {
		a.failures.Add(1)
		return fmt.Errorf("%w: heartbeat %d", ErrInjectedFailure, seq)
	}

	return nil
}

func (a *App) onError(ctx context.Context, err error) bool {
	return !errors.Is(err, ErrInjectedFailure)
}

func (a *App) cleanup(ctx context.Context, graceful bool) error {
	a.cfg.Logger.Debug().Bool("graceful", graceful).Log("heartbeat cleanup")

	var err error
	if a.cfg.MetricsFile != `` {
		if e := loopmetrics.WriteTextfile(a.cfg.MetricsFile, a.cfg.Registry); e != nil {
			err = fmt.Errorf("heartbeat: write metrics: %w", e)
		}
	}

	return errors.Join(err, a.Close())
}

func (a *App) exit(ctx context.Context) error {
	a.cfg.Logger.Info().
		Uint64("ticks", a.ticks.Load()).
		Uint64("failures", a.failures.Load()).
		Uint64("reloads", a.reloads.Load()).
		Log("heartbeat stopped")
	return nil
}

// signal reports status on SIGUSR1.
func (a *App) signal(l *processloop.Loop, sig os.Signal) bool {
	if processloop.SignalName(sig) != "SIGUSR1" {
		return false
	}
	a.cfg.Logger.Notice().
		Uint64("ticks", a.ticks.Load()).
		Uint64("failures", a.failures.Load()).
		Dur("previous", l.PreviousTickDuration()).
		Bool("update_pending", l.NeedsUpdate()).
		Log("heartbeat status")
	return true
}
