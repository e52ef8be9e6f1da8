package uiharness

import "context"

// TestCase is a named sequence of interactions and assertions run against one
// Session. Run returns nil when the case passes; any error fails the target.
// Use the error types in this package (AssertionError, TimeoutError,
// ElementNotFoundError) so that the outcome is classified precisely.
type TestCase interface {
	Name() string
	Run(ctx context.Context, s Session) error
}

// NewCase returns a TestCase that calls fn.
func NewCase(name string, fn func(ctx context.Context, s Session) error) TestCase {
	return funcCase{name: name, fn: fn}
}

type funcCase struct {
	name string
	fn   func(ctx context.Context, s Session) error
}

func (c funcCase) Name() string { return c.name }

func (c funcCase) Run(ctx context.Context, s Session) error { return c.fn(ctx, s) }
