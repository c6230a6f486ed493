package processloop

import (
	"errors"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel/trace"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	observer       Observer
	tracerProvider trace.TracerProvider
	errorLogRates  map[time.Duration]int
	processName    string
	signals        []os.Signal
	frameInterval  time.Duration
	suppressErrors bool
}

// Option configures a Loop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements Option.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithSuppressErrors sets whether an escalated tick failure is swallowed
// once cleanup has run. When disabled (default), the failure is returned
// by Start.
func WithSuppressErrors(enabled bool) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.suppressErrors = enabled
		return nil
	}}
}

// WithFrameInterval sets the minimum delay between the start of two ticks.
// Zero (default) disables pacing. Waiting is interrupted by Stop, and by
// cancellation of the context passed to Start.
func WithFrameInterval(interval time.Duration) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if interval < 0 {
			return errors.New("processloop: negative frame interval")
		}
		opts.frameInterval = interval
		return nil
	}}
}

// WithSignals adds signals to the default bound set (SIGTERM, SIGHUP,
// SIGINT). Duplicates are ignored.
func WithSignals(signals ...os.Signal) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		for _, sig := range signals {
			if sig == nil {
				return errors.New("processloop: nil signal")
			}
		}
		opts.signals = append(opts.signals, signals...)
		return nil
	}}
}

// WithLogger sets the logger. A nil logger (default) disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithObserver registers callbacks for tick, update, signal and exit events,
// e.g. the loopmetrics package.
func WithObserver(observer Observer) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.observer = observer
		return nil
	}}
}

// WithTracerProvider enables tracing of ticks and updates. The default is a
// no-op provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.tracerProvider = provider
		return nil
	}}
}

// WithProcessName sets the name used by StartProcess, which must match a
// factory passed to Register.
func WithProcessName(name string) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.processName = name
		return nil
	}}
}

// WithErrorLogRates configures throttling of logs for swallowed failures
// (update failures and tick failures the error hook did not escalate), per
// sliding window. See the go-catrate package for the constraints on rates.
// A nil map disables throttling.
func WithErrorLogRates(rates map[time.Duration]int) Option {
	return &loopOptionImpl{func(opts *loopOptions) error {
		for window, count := range rates {
			if window <= 0 || count <= 0 {
				return errors.New("processloop: invalid error log rate")
			}
		}
		opts.errorLogRates = rates
		return nil
	}}
}

// resolveLoopOptions applies Option instances to loopOptions.
func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		errorLogRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
