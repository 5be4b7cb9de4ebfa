package payment

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"storefront/internal/util"
)

// Decision is the classifier's verdict on a failed call.
type Decision int

const (
	// Fatal failures reached the provider or are not transient.
	Fatal Decision = iota
	// Retry failures are network reachability problems.
	Retry
)

// Classify decides whether a failed provider call is worth retrying. Only
// network reachability failures are retried; provider HTTP errors are not.
func Classify(err error) Decision {
	if err == nil {
		return Fatal
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return Fatal
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retry
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Retry
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Retry
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retry
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
		syscall.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return Retry
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return Retry
	}
	return Fatal
}

// State of a preference creation run.
type State int

const (
	StateAttempting State = iota
	StateSucceeded
	StateFallbackEngaged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFallbackEngaged:
		return "fallback_engaged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal state of a run. Err holds the last failure when the
// run did not succeed.
type Outcome struct {
	State      State
	Attempts   int
	Preference *Preference
	Err        error
}

// Policy retries network failures with a linearly growing delay and, once
// attempts are exhausted, either engages the offline fallback or fails.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	FallbackEnabled bool
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Next is the transition taken after attempt number attempt failed with err.
func (p Policy) Next(attempt int, err error) State {
	if Classify(err) == Fatal {
		return StateFailed
	}
	if attempt < p.maxAttempts() {
		return StateAttempting
	}
	return p.exhausted()
}

// Delay is the wait before the attempt following attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Budget is the longest a Run can take when every attempt hits callTimeout.
func (p Policy) Budget(callTimeout time.Duration) time.Duration {
	n := p.maxAttempts()
	total := time.Duration(n) * callTimeout
	for attempt := 1; attempt < n; attempt++ {
		total += p.Delay(attempt)
	}
	return total
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) exhausted() State {
	if p.FallbackEnabled {
		return StateFallbackEngaged
	}
	return StateFailed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func attemptLabel(err error) string {
	if err == nil {
		return "success"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http_error"
	}
	if Classify(err) == Retry {
		return "network_error"
	}
	return "error"
}

// Run drives call through the state machine until it reaches a terminal state.
func (p Policy) Run(ctx context.Context, call func(ctx context.Context) (*Preference, error)) Outcome {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	state := StateAttempting
	attempt := 0
	var lastErr error

	for state == StateAttempting {
		attempt++
		start := time.Now()
		pref, err := call(ctx)
		util.PaymentProviderLatency.Observe(time.Since(start).Seconds())
		util.PaymentProviderAttemptsTotal.WithLabelValues(attemptLabel(err)).Inc()

		if err == nil {
			return Outcome{State: StateSucceeded, Attempts: attempt, Preference: pref}
		}
		lastErr = err

		// A caller that went away never reaches the fallback: only attempts
		// actually spent count as exhaustion.
		if cerr := ctx.Err(); cerr != nil {
			return Outcome{State: StateFailed, Attempts: attempt, Err: cerr}
		}

		state = p.Next(attempt, err)
		if state == StateAttempting {
			if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
				if cerr := ctx.Err(); cerr != nil {
					serr = cerr
				}
				return Outcome{State: StateFailed, Attempts: attempt, Err: serr}
			}
		}
	}

	return Outcome{State: state, Attempts: attempt, Err: lastErr}
}
