package transporter

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/log"
)

// DefaultMarker is the line the transporter controller prints when a box
// has stopped in front of the cameras.
const DefaultMarker = "info: transporter C box ready to take"

const (
	DefaultSettleDelay  = time.Second
	DefaultRetryBackoff = 100 * time.Millisecond

	// maxLineLength bounds the pending line buffer. A longer line is
	// dropped up to and including its newline; it can never equal the marker.
	maxLineLength = 4096
)

var (
	ErrNotStarted = errors.New("transporter: listener not started")
	ErrStopped    = errors.New("transporter: listener stopped")
)

// State is the externally visible listener state.
type State int

const (
	Disconnected State = iota
	Listening
	Latched
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Listening:
		return "listening"
	case Latched:
		return "latched"
	default:
		return "unknown"
	}
}

// Opener opens the named port for reading. Reads should time out
// periodically (returning 0, nil) so that the listener stays responsive.
type Opener func(port string) (io.ReadCloser, error)

// Config holds listener settings. Empty Marker and zero Backoff select the
// defaults; Settle is used as given, so zero means latch immediately.
type Config struct {
	Port    string
	Marker  string
	Settle  time.Duration
	Backoff time.Duration

	// FailureBuffer is the capacity of the Failures channel.
	FailureBuffer int

	Logger *slog.Logger
}

// Signal listens to the transporter serial line and latches an arrival
// event whenever the marker line is seen.
//
// The latch is a single atomic flag: only the listener goroutine sets it and
// only PollAndReset clears it, so a burst of markers before the consumer
// polls collapses into one event.
type Signal struct {
	cfg   Config
	open  Opener
	rep   *reporter
	latch atomic.Bool
	conn  atomic.Bool

	mu      sync.Mutex
	port    io.ReadCloser
	started bool
	stopped bool

	stop     chan struct{}
	reopen   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a listener. Call Start to begin reading.
func New(cfg Config, open Opener) *Signal {
	if cfg.Marker == "" {
		cfg.Marker = DefaultMarker
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultRetryBackoff
	}
	if cfg.FailureBuffer <= 0 {
		cfg.FailureBuffer = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = log.With("component", "transporter")
	}

	return &Signal{
		cfg:    cfg,
		open:   open,
		rep:    newReporter(cfg.FailureBuffer, cfg.Logger),
		stop:   make(chan struct{}),
		reopen: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the listener goroutine. An unavailable port is reported
// as a DeviceUnavailable failure rather than returned: the listener then
// idles until Reopen or Stop.
func (s *Signal) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.started = true
	go s.run()
	return nil
}

// PollAndReset reports whether a box arrived since the previous call and
// clears the latch. Each latched event yields exactly one true.
func (s *Signal) PollAndReset() bool {
	return s.latch.CompareAndSwap(true, false)
}

// Reopen closes the current port, if any, and opens it again. It is the
// only way out of the Disconnected state.
func (s *Signal) Reopen() error {
	s.mu.Lock()
	started, stopped := s.started, s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !started {
		return ErrNotStarted
	}

	select {
	case s.reopen <- struct{}{}:
	default:
	}
	s.closePort()
	return nil
}

// Stop terminates the listener and waits for it to exit. No latch write
// happens after Stop returns. Calling Stop more than once is safe.
func (s *Signal) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
		s.closePort()
	})

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// State returns the current listener state.
func (s *Signal) State() State {
	switch {
	case !s.conn.Load():
		return Disconnected
	case s.latch.Load():
		return Latched
	default:
		return Listening
	}
}

// Failures delivers reported failures. Sends never block; failures are
// dropped when the buffer is full, but they are always logged.
func (s *Signal) Failures() <-chan Failure {
	return s.rep.out
}

func (s *Signal) run() {
	defer close(s.done)
	defer s.conn.Store(false)

	for {
		port, err := s.open(s.cfg.Port)
		if err != nil {
			s.conn.Store(false)
			s.report(DeviceUnavailable, err)
			select {
			case <-s.stop:
				return
			case <-s.reopen:
				continue
			}
		}
		if !s.setPort(port) {
			return
		}

		s.conn.Store(true)
		s.cfg.Logger.Info("listening", "port", s.cfg.Port)
		again := s.listen(port)
		s.conn.Store(false)
		s.closePort()
		if !again {
			return
		}
		s.cfg.Logger.Info("reopening", "port", s.cfg.Port)
	}
}

// listen reads lines until Stop (returns false) or Reopen (returns true).
func (s *Signal) listen(port io.Reader) bool {
	buf := make([]byte, 256)
	var line []byte
	// discarding is set while the rest of an over-long line is skipped
	discarding := false

	for {
		if quit, again := s.interrupted(); quit {
			return again
		}

		n, err := port.Read(buf)
		if n > 0 {
			s.rep.reset()
			line = append(line, buf[:n]...)
			for {
				i := bytes.IndexByte(line, '\n')
				if i < 0 {
					break
				}
				matched := !discarding && string(line[:i]) == s.cfg.Marker
				discarding = false
				line = line[i+1:]
				if matched && !s.arrive() {
					return false
				}
			}
			if len(line) > maxLineLength {
				line = line[:0]
				discarding = true
			}
			// Compact so the buffer does not grow with consumed bytes
			line = append(line[:0:0], line...)
		}

		if err != nil {
			if quit, again := s.interrupted(); quit {
				return again
			}
			s.latch.Store(false)
			s.report(StreamReadFailure, err)
			line = line[:0]
			discarding = false
			if !s.sleep(s.cfg.Backoff) {
				return false
			}
		}
	}
}

// arrive waits out the settle delay and sets the latch. It returns false if
// Stop interrupted the wait.
func (s *Signal) arrive() bool {
	if !s.sleep(s.cfg.Settle) {
		return false
	}
	s.latch.Store(true)
	s.cfg.Logger.Debug("box arrived", "port", s.cfg.Port)
	return true
}

// interrupted checks for a pending Stop or Reopen without blocking.
func (s *Signal) interrupted() (quit, again bool) {
	select {
	case <-s.stop:
		return true, false
	default:
	}
	select {
	case <-s.reopen:
		return true, true
	default:
		return false, false
	}
}

// sleep waits for d, returning false if Stop was called meanwhile.
func (s *Signal) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stop:
		return false
	case <-t.C:
		return true
	}
}

func (s *Signal) setPort(port io.ReadCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		port.Close()
		return false
	}
	s.port = port
	return true
}

func (s *Signal) closePort() {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port != nil {
		if err := port.Close(); err != nil {
			s.cfg.Logger.Debug("close port", "port", s.cfg.Port, "error", err)
		}
	}
}

func (s *Signal) report(kind Kind, err error) {
	s.rep.report(Failure{Kind: kind, Port: s.cfg.Port, Err: err, At: time.Now()})
}
