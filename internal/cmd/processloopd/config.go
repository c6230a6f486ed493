// Package processloopd parses processloopd configuration and runs the
// heartbeat daemon in one of the loop launch modes.
package processloopd

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joeycumines/go-processloop/processloop"
	"github.com/joeycumines/logiface"
)

// Launch modes.
const (
	ModeInline  = "inline"
	ModeThread  = "thread"
	ModeProcess = "process"
)

// Config holds processloopd command configuration.
type Config struct {
	Mode           string        `env:"PROCESSLOOPD_MODE" envDefault:"inline"`
	FrameInterval  time.Duration `env:"PROCESSLOOPD_FRAME_INTERVAL" envDefault:"1s"`
	SettingsPath   string        `env:"PROCESSLOOPD_SETTINGS"`
	PIDFile        string        `env:"PROCESSLOOPD_PID_FILE"`
	MetricsFile    string        `env:"PROCESSLOOPD_METRICS_FILE"`
	LogLevel       string        `env:"PROCESSLOOPD_LOG_LEVEL" envDefault:"info"`
	MaxTicks       uint64        `env:"PROCESSLOOPD_MAX_TICKS"`
	SuppressErrors bool          `env:"PROCESSLOOPD_SUPPRESS_ERRORS"`
	Signals        []string      `env:"PROCESSLOOPD_SIGNALS" envSeparator:","`
	OTelEndpoint   string        `env:"PROCESSLOOPD_OTEL_ENDPOINT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	if fs == nil {
		return Config{}, errors.New("flag parser is required")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Launch mode: inline, thread or process")
	fs.DurationVar(&cfg.FrameInterval, "frame-interval", cfg.FrameInterval, "Minimum delay between heartbeats")
	fs.StringVar(&cfg.SettingsPath, "settings", cfg.SettingsPath, "YAML settings file, reloaded on SIGHUP")
	fs.StringVar(&cfg.PIDFile, "pid-file", cfg.PIDFile, "Pidfile guarding against concurrent instances")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Prometheus textfile written on cleanup")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: trace, debug, info, notice, warning, err, crit or disabled")
	fs.Uint64Var(&cfg.MaxTicks, "max-ticks", cfg.MaxTicks, "Stop after this many heartbeats, zero runs until signaled")
	fs.BoolVar(&cfg.SuppressErrors, "suppress-errors", cfg.SuppressErrors, "Exit cleanly after an escalated heartbeat failure")
	fs.Func("signals", "Comma separated signals to bind in addition to SIGTERM, SIGHUP and SIGINT", func(s string) error {
		cfg.Signals = splitList(s)
		return nil
	})
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint URL, tracing is disabled if empty")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.Mode {
	case ModeInline, ModeThread, ModeProcess:
	default:
		return fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	if cfg.FrameInterval < 0 {
		return fmt.Errorf("invalid frame interval %s", cfg.FrameInterval)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	if _, err := cfg.signals(); err != nil {
		return err
	}
	return nil
}

func (cfg Config) signals() ([]os.Signal, error) {
	var signals []os.Signal
	for _, name := range cfg.Signals {
		sig, err := processloop.ParseSignal(name)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// ParseLevel resolves a logiface level by name, e.g. "debug" or "err",
// also accepting "error", "warn" and "critical".
func ParseLevel(name string) (logiface.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	case "critical":
		return logiface.LevelCritical, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("invalid log level %q", name)
}

func splitList(s string) []string {
	var values []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != `` {
			values = append(values, v)
		}
	}
	return values
}
