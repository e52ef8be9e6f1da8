package webdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/log"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/internal/blocking"
)

// session adapts a selenium.WebDriver to uiharness.Session.
type session struct {
	wd            selenium.WebDriver
	svc           *selenium.Service
	locateTimeout time.Duration
	closeTimeout  time.Duration
	interval      time.Duration

	closeOnce sync.Once
	closeErr  error
}

// selector returns the WebDriver strategy and value for loc.
func selector(loc uiharness.Locator) (string, string) {
	if loc.IsRole() {
		return selenium.ByXPATH, uiharness.RoleXPath(loc.Role, loc.Name)
	}
	return selenium.ByCSSSelector, loc.CSS
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if err := blocking.Do(ctx, func() error { return s.wd.Get(url) }); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *session) Title(ctx context.Context) (string, error) {
	return blocking.Call(ctx, s.wd.Title)
}

func (s *session) URL(ctx context.Context) (string, error) {
	return blocking.Call(ctx, s.wd.CurrentURL)
}

func (s *session) Locate(ctx context.Context, loc uiharness.Locator) (uiharness.Element, error) {
	by, value := selector(loc)
	var we selenium.WebElement
	err := uiharness.Poll(ctx, fmt.Sprintf("locate %s", loc), s.locateTimeout, s.interval, func(ctx context.Context) (bool, error) {
		e, err := blocking.Call(ctx, func() (selenium.WebElement, error) { return s.wd.FindElement(by, value) })
		if err != nil {
			return false, err
		}
		we = e
		return true, nil
	})
	if uiharness.IsTimeout(err) && ctx.Err() == nil {
		return nil, &uiharness.ElementNotFoundError{Candidates: []uiharness.Locator{loc}}
	}
	if err != nil {
		return nil, err
	}
	return &element{we: we, loc: loc}, nil
}

func (s *session) WaitForURL(ctx context.Context, pattern uiharness.URLPattern, timeout time.Duration) error {
	return uiharness.Poll(ctx, fmt.Sprintf("wait for URL %s", pattern), timeout, s.interval, func(ctx context.Context) (bool, error) {
		u, err := blocking.Call(ctx, s.wd.CurrentURL)
		if err != nil {
			return false, err
		}
		return pattern.Match(u), nil
	})
}

func (s *session) WaitForSelector(ctx context.Context, loc uiharness.Locator, state uiharness.State, timeout time.Duration) error {
	by, value := selector(loc)
	return uiharness.Poll(ctx, fmt.Sprintf("wait for %s to be %s", loc, state), timeout, s.interval, func(ctx context.Context) (bool, error) {
		els, err := blocking.Call(ctx, func() ([]selenium.WebElement, error) { return s.wd.FindElements(by, value) })
		if err != nil {
			return false, err
		}
		switch state {
		case uiharness.Attached:
			return len(els) > 0, nil
		case uiharness.Detached:
			return len(els) == 0, nil
		}
		visible := false
		for _, e := range els {
			ok, err := blocking.Call(ctx, e.IsDisplayed)
			if err != nil {
				// Stale elements count as gone.
				continue
			}
			if ok {
				visible = true
				break
			}
		}
		if state == uiharness.Hidden {
			return !visible, nil
		}
		return visible, nil
	})
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	return blocking.Call(ctx, s.wd.Screenshot)
}

// Close quits the WebDriver session and stops the local driver, if any.
// Each step is given closeTimeout; a driver that does not answer in time is
// abandoned. Calls after the first return the first result.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.bounded(s.wd.Quit); err != nil {
			errs = append(errs, fmt.Errorf("quit: %w", err))
		}
		if s.svc != nil {
			if err := s.bounded(s.svc.Stop); err != nil {
				errs = append(errs, fmt.Errorf("stop driver: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *session) bounded(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
	defer cancel()
	return blocking.Do(ctx, fn)
}

// ConsoleLines returns the browser log. GeckoDriver does not implement the
// log endpoint, in which case nothing is returned. Neither is anything
// returned if the driver does not answer before ctx ends.
func (s *session) ConsoleLines(ctx context.Context) []string {
	msgs, err := blocking.Call(ctx, func() ([]log.Message, error) { return s.wd.Log(log.Browser) })
	if err != nil {
		glog.V(1).Infof("reading browser log: %v", err)
		return nil
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", m.Level, m.Message)
	}
	return lines
}

type element struct {
	we  selenium.WebElement
	loc uiharness.Locator
}

func (e *element) Fill(ctx context.Context, text string) error {
	return blocking.Do(ctx, func() error {
		if err := e.we.Clear(); err != nil {
			return fmt.Errorf("clear %s: %w", e.loc, err)
		}
		return e.we.SendKeys(text)
	})
}

func (e *element) Click(ctx context.Context) error {
	return blocking.Do(ctx, e.we.Click)
}

func (e *element) Press(ctx context.Context, key string) error {
	k, err := keyCode(key)
	if err != nil {
		return err
	}
	return blocking.Do(ctx, func() error { return e.we.SendKeys(k) })
}

func (e *element) Text(ctx context.Context) (string, error) {
	return blocking.Call(ctx, e.we.Text)
}

var namedKeys = map[string]string{
	"Enter":      selenium.EnterKey,
	"Return":     selenium.ReturnKey,
	"Tab":        selenium.TabKey,
	"Escape":     selenium.EscapeKey,
	"Backspace":  selenium.BackspaceKey,
	"Delete":     selenium.DeleteKey,
	"Space":      selenium.SpaceKey,
	"Home":       selenium.HomeKey,
	"End":        selenium.EndKey,
	"PageUp":     selenium.PageUpKey,
	"PageDown":   selenium.PageDownKey,
	"ArrowUp":    selenium.UpArrowKey,
	"ArrowDown":  selenium.DownArrowKey,
	"ArrowLeft":  selenium.LeftArrowKey,
	"ArrowRight": selenium.RightArrowKey,
}

// keyCode maps a key name to the code point WebDriver expects. Single
// characters are sent as they are.
func keyCode(key string) (string, error) {
	if k, ok := namedKeys[key]; ok {
		return k, nil
	}
	if utf8.RuneCountInString(key) == 1 {
		return key, nil
	}
	return "", fmt.Errorf("unsupported key %q", key)
}
