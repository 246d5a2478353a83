// Package link owns the lifecycle of the raw telemetry byte stream: it
// dials the source, frames the stream, hands complete frames downstream and
// reconnects with capped exponential backoff when the link drops.
package link

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sufst/intermediate-server/codec"
)

// State is the supervisor's lifecycle state.
type State int32

const (
	Idle State = iota
	Connecting
	Streaming
	Reconnecting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// ByteSource is the opaque byte stream behind the supervisor: a radio link
// driver, a TCP connection, or an emulation source. Frame boundaries are
// the supervisor's problem, not the source's.
type ByteSource interface {
	Read(p []byte) (int, error)
	Close() error
}

// Dialer opens the underlying source. Implementations must honor ctx
// cancellation.
type Dialer func(ctx context.Context) (ByteSource, error)

// FrameSink receives each complete frame extracted from the stream.
type FrameSink func(codec.Frame)

// Config bounds the supervisor's reconnect and read behavior.
type Config struct {
	// BackoffBase is the first reconnect delay; each consecutive failure
	// doubles it up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// ReadTimeout bounds a single read so a stalled link is detected. It
	// applies to sources that support read deadlines; other sources are
	// expected to return timeout errors themselves.
	ReadTimeout time.Duration
}

const (
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 5 * time.Second
	readBufferSize     = 4096
)

// sleep is a var so tests can record and collapse delays.
var sleep = func(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Supervisor drives the read loop. Decoding happens synchronously in the
// sink per frame, preserving per-frame order.
type Supervisor struct {
	cfg    Config
	dial   Dialer
	sink   FrameSink
	framer codec.Framer
	state  atomic.Int32
}

// New returns an idle supervisor. Zero config fields take defaults.
func New(cfg Config, dial Dialer, sink FrameSink) *Supervisor {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}
	return &Supervisor{
		cfg:  cfg,
		dial: dial,
		sink: sink,
	}
}

// State reports the supervisor's current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(v State) {
	prev := State(s.state.Swap(int32(v)))
	if prev != v {
		log.WithField("from", prev).WithField("to", v).Info("link state")
	}
}

// Run drives the connect/stream/reconnect loop until ctx is cancelled. The
// source is closed on every exit path. Run only returns on shutdown; total
// link loss degrades to an indefinite reconnect holding pattern.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(Connecting)

	var src ByteSource
	defer func() {
		if src != nil {
			if err := src.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close link source")
			}
		}
		s.setState(Stopped)
	}()

	buf := make([]byte, readBufferSize)
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if src == nil {
			if attempt > 0 {
				delay := s.backoff(attempt - 1)
				log.WithField("attempt", attempt).
					WithField("delay", delay).
					Info("link retry")
				sleep(ctx, delay)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.setState(Connecting)
			}

			var err error
			src, err = s.dial(ctx)
			if err != nil {
				attempt++
				log.WithField("err", err).Error("unable to open link")
				continue
			}
			attempt = 0
			s.framer.Reset()
			s.setState(Streaming)

			// unblock a pending Read on shutdown
			go func(src ByteSource) {
				<-ctx.Done()
				_ = src.Close()
			}(src)
		}

		n, err := s.read(src, buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithField("err", err).Error("link dropped, reconnecting")
			if cerr := src.Close(); cerr != nil {
				log.WithField("err", cerr).Warn("unable to close link source")
			}
			src = nil
			// discard any partially buffered frame; a truncated in-flight
			// frame must never decode as complete
			s.framer.Reset()
			s.setState(Reconnecting)
			attempt++
			continue
		}

		for _, frame := range s.framer.Push(buf[:n]) {
			s.sink(frame)
		}
	}
}

func (s *Supervisor) read(src ByteSource, buf []byte) (int, error) {
	if s.cfg.ReadTimeout > 0 {
		if dr, ok := src.(deadlineReader); ok {
			if err := dr.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
				return 0, errors.Wrap(err, "unable to set read deadline")
			}
		}
	}
	n, err := src.Read(buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("empty read from link source")
	}
	return n, nil
}

func (s *Supervisor) backoff(failures int) time.Duration {
	d := s.cfg.BackoffBase
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if d > s.cfg.BackoffMax {
		d = s.cfg.BackoffMax
	}
	return d
}
