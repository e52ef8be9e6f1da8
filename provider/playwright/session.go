package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/internal/blocking"
)

// DefaultActionTimeout bounds element actions when the context has no
// deadline.
const DefaultActionTimeout = 30 * time.Second

type session struct {
	browser  playwright.Browser
	bctx     playwright.BrowserContext
	page     playwright.Page
	fullPage bool

	mu      sync.Mutex
	console []string

	closeOnce sync.Once
	closeErr  error
}

func (s *session) addConsole(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, line)
}

// ConsoleLines returns the console messages the page logged so far.
func (s *session) ConsoleLines(context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.console...)
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := timeoutMS(ctx, DefaultActionTimeout)
	_, err := s.page.Goto(url, playwright.PageGotoOptions{Timeout: playwright.Float(ms)})
	return wrapTimeout(err, "navigate to "+url, msDuration(ms))
}

func (s *session) Title(ctx context.Context) (string, error) {
	return blocking.Call(ctx, s.page.Title)
}

// URL reads the URL the client tracks for the page; it does not ask the
// browser.
func (s *session) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.URL(), nil
}

func (s *session) locator(loc uiharness.Locator) playwright.Locator {
	if loc.IsRole() {
		opts := playwright.PageGetByRoleOptions{}
		if loc.Name != "" {
			opts.Name = loc.Name
		}
		return s.page.GetByRole(playwright.AriaRole(loc.Role), opts)
	}
	return s.page.Locator(loc.CSS)
}

// Locate returns a lazy handle; Playwright resolves it, waiting for the
// element, on every action.
func (s *session) Locate(ctx context.Context, loc uiharness.Locator) (uiharness.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &element{l: s.locator(loc).First(), loc: loc}, nil
}

func (s *session) WaitForURL(ctx context.Context, pattern uiharness.URLPattern, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	re := pattern.Regexp()
	if re == nil {
		return fmt.Errorf("empty URL pattern")
	}
	err := s.page.WaitForURL(re, playwright.PageWaitForURLOptions{Timeout: playwright.Float(timeoutMS(ctx, timeout))})
	return wrapTimeout(err, fmt.Sprintf("wait for URL %s", pattern), timeout)
}

func (s *session) WaitForSelector(ctx context.Context, loc uiharness.Locator, state uiharness.State, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st, err := waitState(state)
	if err != nil {
		return err
	}
	err = s.locator(loc).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   st,
		Timeout: playwright.Float(timeoutMS(ctx, timeout)),
	})
	return wrapTimeout(err, fmt.Sprintf("wait for %s to be %s", loc, state), timeout)
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(s.fullPage),
		Timeout:  playwright.Float(timeoutMS(ctx, DefaultActionTimeout)),
	})
}

// Close closes the browser context and the browser.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.bctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

type element struct {
	l   playwright.Locator
	loc uiharness.Locator
}

func (e *element) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := timeoutMS(ctx, DefaultActionTimeout)
	err := e.l.Fill(text, playwright.LocatorFillOptions{Timeout: playwright.Float(ms)})
	return wrapTimeout(err, fmt.Sprintf("fill %s", e.loc), msDuration(ms))
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := timeoutMS(ctx, DefaultActionTimeout)
	err := e.l.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(ms)})
	return wrapTimeout(err, fmt.Sprintf("click %s", e.loc), msDuration(ms))
}

func (e *element) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := timeoutMS(ctx, DefaultActionTimeout)
	err := e.l.Press(key, playwright.LocatorPressOptions{Timeout: playwright.Float(ms)})
	return wrapTimeout(err, fmt.Sprintf("press %s on %s", key, e.loc), msDuration(ms))
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ms := timeoutMS(ctx, DefaultActionTimeout)
	text, err := e.l.TextContent(playwright.LocatorTextContentOptions{Timeout: playwright.Float(ms)})
	return text, wrapTimeout(err, fmt.Sprintf("text of %s", e.loc), msDuration(ms))
}
