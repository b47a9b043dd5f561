package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds the shutdown sequence run by Session.Close.
const DefaultShutdownTimeout = 10 * time.Second

// Bench groups the collaborators of one measurement run. Source, Meter and
// Switch are optional; a noise floor sweep only needs the Receiver.
type Bench struct {
	Receiver Receiver
	Source   AmplitudeSource
	Meter    ReferenceMeterReader
	Switch   PathSwitch
}

// WithSessionLogger sets the logger for the session
func WithSessionLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithShutdownTimeout sets the time allowed for the shutdown sequence
func WithShutdownTimeout(d time.Duration) func(s *Session) {
	return func(s *Session) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Session owns the bench for the duration of a run. Close always puts the
// signal generator into a safe state, RF off then preset, and releases every
// collaborator that implements io.Closer. It runs even when the run context
// has been cancelled.
//
// Callers must defer Close immediately after a successful Open.
type Session struct {
	bench Bench
	ctx   context.Context

	shutdownTimeout time.Duration
	logger          *slog.Logger

	once     sync.Once
	closeErr error
}

// Open brings the bench into a known state: the generator is preset and its
// output disabled. If that fails the shutdown sequence runs before returning.
func Open(ctx context.Context, bench Bench, options ...func(s *Session)) (*Session, error) {
	if bench.Receiver == nil {
		return nil, errors.New("instrument.Session: receiver is required")
	}

	s := Session{
		bench:           bench,
		ctx:             ctx,
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	if src := bench.Source; src != nil {
		s.logger.Info("presetting signal generator")

		err := src.Preset(ctx)
		if err == nil {
			err = src.RFOff(ctx)
		}
		if err != nil {
			return nil, errors.Join(fmt.Errorf("preparing signal generator: %w", err), s.Close())
		}
	}

	return &s, nil
}

// Bench returns the collaborators held by the session.
func (s *Session) Bench() Bench {
	return s.bench
}

// Close runs the shutdown sequence once. Later calls return the first result.
func (s *Session) Close() error {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.shutdownTimeout)
		defer cancel()

		var errs []error

		if src := s.bench.Source; src != nil {
			s.logger.Info("signal generator RF off")
			if err := src.RFOff(ctx); err != nil {
				errs = append(errs, fmt.Errorf("disabling RF output: %w", err))
			}
			if err := src.Preset(ctx); err != nil {
				errs = append(errs, fmt.Errorf("presetting signal generator: %w", err))
			}
		}

		if err := CloseBench(s.bench); err != nil {
			errs = append(errs, err)
		}

		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Error("bench shutdown failed", slog.String("error", s.closeErr.Error()))
		} else {
			s.logger.Info("bench shut down")
		}
	})

	return s.closeErr
}

// CloseBench releases every distinct collaborator of b that implements
// io.Closer. It sends no commands to the instruments.
func CloseBench(b Bench) error {
	var errs []error

	seen := make(map[io.Closer]struct{})
	for _, c := range []any{unwrapSource(b.Source), b.Meter, b.Switch, b.Receiver} {
		closer, ok := c.(io.Closer)
		if !ok {
			continue
		}
		if _, dup := seen[closer]; dup {
			continue
		}
		seen[closer] = struct{}{}

		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func unwrapSource(src AmplitudeSource) any {
	if g, ok := src.(*Guard); ok {
		return g.AmplitudeSource
	}
	return src
}
