// Package control reads operator commands, one per line.
//
//	k, rebaseline   capture new reference frames on every camera
//	r, reopen       reopen the transporter serial port
//	s, status       log camera and transporter state
//	q, quit         stop the station
//
// Commands are case-insensitive. Empty lines are ignored and unknown
// commands are logged and skipped.
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Command is an operator request.
type Command int

const (
	Rebaseline Command = iota + 1
	Reopen
	Status
	Quit
)

func (c Command) String() string {
	switch c {
	case Rebaseline:
		return "rebaseline"
	case Reopen:
		return "reopen"
	case Status:
		return "status"
	case Quit:
		return "quit"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Parse maps one input line to a command.
func Parse(line string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "k", "rebaseline":
		return Rebaseline, true
	case "r", "reopen":
		return Reopen, true
	case "s", "status":
		return Status, true
	case "q", "quit", "exit":
		return Quit, true
	default:
		return 0, false
	}
}

// Read scans r line by line and sends each recognized command to out.
// It returns nil at end of input or when ctx is done.
func Read(ctx context.Context, r io.Reader, out chan<- Command, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, ok := Parse(line)
		if !ok {
			logger.Warn("unknown command", "input", line)
			continue
		}

		select {
		case out <- cmd:
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// Listen starts reading commands from r in the background. The returned
// channel is closed at end of input.
//
// A blocking reader such as os.Stdin cannot be interrupted, so the
// goroutine may outlive ctx until the next line arrives.
func Listen(ctx context.Context, r io.Reader, logger *slog.Logger) <-chan Command {
	out := make(chan Command)
	go func() {
		defer close(out)
		if err := Read(ctx, r, out, logger); err != nil {
			logger.Error("command input failed", "error", err)
		}
	}()
	return out
}
