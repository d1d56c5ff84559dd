package transporter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a listener failure.
type Kind int

const (
	// DeviceUnavailable means the serial port could not be opened.
	DeviceUnavailable Kind = iota + 1

	// StreamReadFailure means reading from an open port failed.
	StreamReadFailure
)

func (k Kind) String() string {
	switch k {
	case DeviceUnavailable:
		return "device unavailable"
	case StreamReadFailure:
		return "stream read failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure is a hardware fault observed by the listener. It is reported,
// never returned: the listener keeps running (or idles) after a failure.
type Failure struct {
	Kind Kind
	Port string
	Err  error
	At   time.Time
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s on %s: %v", f.Kind, f.Port, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// key identifies a failure for deduplication. Two failures with the same
// kind and message are the same fault repeating.
func (f Failure) key() string {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return f.Kind.String() + "\x00" + msg
}

// reporter delivers failures to a channel and the log, suppressing a failure
// identical to the one reported last.
type reporter struct {
	mu     sync.Mutex
	last   string
	out    chan Failure
	logger *slog.Logger
}

func newReporter(buffer int, logger *slog.Logger) *reporter {
	return &reporter{out: make(chan Failure, buffer), logger: logger}
}

// report returns false when the failure was suppressed as a repeat.
func (r *reporter) report(f Failure) bool {
	r.mu.Lock()
	k := f.key()
	if k == r.last {
		r.mu.Unlock()
		return false
	}
	r.last = k
	r.mu.Unlock()

	r.logger.Warn("transporter failure",
		"kind", f.Kind.String(),
		"port", f.Port,
		"error", f.Err)

	// Never block the listener on a slow consumer
	select {
	case r.out <- f:
	default:
		r.logger.Debug("failure channel full, dropping", "kind", f.Kind.String())
	}
	return true
}

// reset forgets the last failure so that a recurrence is reported again.
func (r *reporter) reset() {
	r.mu.Lock()
	r.last = ""
	r.mu.Unlock()
}
