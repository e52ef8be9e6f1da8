package uiharness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies why a target failed.
type Kind int

// Failure kinds. KindNone is used for passed outcomes.
const (
	KindNone Kind = iota
	KindLaunch
	KindAssertion
	KindTimeout
	KindElementNotFound
	KindUnexpected
)

var kindNames = map[Kind]string{
	KindNone:            "none",
	KindLaunch:          "launch",
	KindAssertion:       "assertion",
	KindTimeout:         "timeout",
	KindElementNotFound: "element-not-found",
	KindUnexpected:      "unexpected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// LaunchError is returned when a provider cannot open a session.
type LaunchError struct {
	Target string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Target, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// AssertionError reports an expected condition that did not hold.
type AssertionError struct {
	Step     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %q", e.Step, e.Expected, e.Actual)
}

// TimeoutError reports a wait that exceeded its bound.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	// Last is the most recent error returned by the awaited condition, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: timed out after %v", e.Op, e.Timeout)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

// ElementNotFoundError reports that none of an ordered list of candidate
// locators resolved.
type ElementNotFoundError struct {
	Candidates []Locator
}

func (e *ElementNotFoundError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.String()
	}
	return fmt.Sprintf("no element found for any of [%s]", strings.Join(names, ", "))
}

// CaptureError reports a failure to capture or store a diagnostic artifact.
// It is logged and never replaces the failure that triggered the capture.
type CaptureError struct {
	Target string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture artifact for %s: %v", e.Target, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Classify maps an error returned by a provider or a test case to a Kind.
func Classify(err error) Kind {
	var (
		launch    *LaunchError
		assertion *AssertionError
		timeout   *TimeoutError
		notFound  *ElementNotFoundError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &launch):
		return KindLaunch
	case errors.As(err, &assertion):
		return KindAssertion
	case errors.As(err, &notFound):
		return KindElementNotFound
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnexpected
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return Classify(err) == KindTimeout
}
