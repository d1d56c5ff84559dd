// Package transporter turns the transporter controller's serial output into
// an arrival signal.
//
// A Signal owns one listener goroutine. It splits the byte stream into
// lines and, when a line equals the marker, waits for the settle delay so the
// box comes to rest and then sets an atomic latch. The orchestrator consumes
// the latch with PollAndReset, which swaps it back to false.
//
// Hardware faults are not returned to the caller. They are reported as
// Failure values on the Failures channel and in the log, with consecutive
// duplicates suppressed. A read failure clears the latch and the listener
// retries after a back-off; an open failure leaves the listener
// Disconnected until Reopen is called.
package transporter
