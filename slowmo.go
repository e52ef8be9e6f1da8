package uiharness

import (
	"context"
	"time"
)

// SlowMotion wraps s so that every navigation and element interaction is
// preceded by a pause of delay. Providers whose libraries have no native
// slow-motion mode use it to honor BrowserTarget.SlowMo. A non-positive delay
// returns s unchanged.
func SlowMotion(s Session, delay time.Duration) Session {
	if delay <= 0 {
		return s
	}
	return &slowSession{Session: s, delay: delay}
}

type slowSession struct {
	Session
	delay time.Duration
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *slowSession) Navigate(ctx context.Context, url string) error {
	if err := pause(ctx, s.delay); err != nil {
		return err
	}
	return s.Session.Navigate(ctx, url)
}

func (s *slowSession) Locate(ctx context.Context, loc Locator) (Element, error) {
	e, err := s.Session.Locate(ctx, loc)
	if err != nil {
		return nil, err
	}
	return &slowElement{Element: e, delay: s.delay}, nil
}

// ConsoleLines forwards to the wrapped session when it records console output.
func (s *slowSession) ConsoleLines(ctx context.Context) []string {
	if cr, ok := s.Session.(ConsoleReader); ok {
		return cr.ConsoleLines(ctx)
	}
	return nil
}

type slowElement struct {
	Element
	delay time.Duration
}

func (e *slowElement) Fill(ctx context.Context, text string) error {
	if err := pause(ctx, e.delay); err != nil {
		return err
	}
	return e.Element.Fill(ctx, text)
}

func (e *slowElement) Click(ctx context.Context) error {
	if err := pause(ctx, e.delay); err != nil {
		return err
	}
	return e.Element.Click(ctx)
}

func (e *slowElement) Press(ctx context.Context, key string) error {
	if err := pause(ctx, e.delay); err != nil {
		return err
	}
	return e.Element.Press(ctx, key)
}
