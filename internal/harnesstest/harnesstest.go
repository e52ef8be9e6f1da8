// Package harnesstest provides an in-memory browser Provider for testing the
// runner and test cases without a real browser. Sessions are scripted: tests
// declare the elements a page has and what clicking or typing into them does.
package harnesstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wanmail/uiharness"
)

// Provider is a scripted uiharness.Provider that records launches and closes.
type Provider struct {
	// LaunchErr, if set, is consulted on every launch; a non-nil result makes
	// Launch fail for that target.
	LaunchErr func(t uiharness.BrowserTarget) error
	// Setup, if set, scripts every new session before Launch returns it.
	Setup func(t uiharness.BrowserTarget, s *Session)

	mu       sync.Mutex
	launches int
	sessions []*Session
	events   []string
}

func (p *Provider) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Launch implements uiharness.Provider.
func (p *Provider) Launch(ctx context.Context, t uiharness.BrowserTarget) (uiharness.Session, error) {
	p.mu.Lock()
	p.launches++
	p.mu.Unlock()
	p.record("launch " + t.String())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.LaunchErr != nil {
		if err := p.LaunchErr(t); err != nil {
			return nil, err
		}
	}
	s := NewSession(t)
	s.provider = p
	if p.Setup != nil {
		p.Setup(t, s)
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Launches returns the number of Launch calls.
func (p *Provider) Launches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launches
}

// Events returns "launch {target}" and "close {target}" entries in the order
// they happened. A close is recorded once Close has returned.
func (p *Provider) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Sessions returns the sessions opened so far, in launch order.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Wait records one WaitForSelector call.
type Wait struct {
	Locator uiharness.Locator
	State   uiharness.State
	Timeout time.Duration
	Elapsed time.Duration
	Err     error
}

// Session is a scripted uiharness.Session.
type Session struct {
	Target uiharness.BrowserTarget

	// Titles maps URLs to the page title shown after navigating to them.
	Titles map[string]string
	// Elements maps Locator.String() values to the elements on the page.
	Elements map[string]*Element
	// NavigateErr, ScreenshotErr and CloseErr are returned by the methods of
	// the same name.
	NavigateErr   error
	ScreenshotErr error
	CloseErr      error
	// Console is returned by ConsoleLines.
	Console []string
	// PollInterval is used by the wait methods.
	PollInterval time.Duration
	// Hang, if set, makes Navigate, Screenshot, ConsoleLines and Close block
	// until it is closed, as a browser that stopped answering would. The
	// methods taking a context also return when it ends.
	Hang <-chan struct{}

	provider *Provider
	mu       sync.Mutex
	url      string
	title    string
	closes   int
	waits    []Wait
}

// NewSession returns an empty session bound to t.
func NewSession(t uiharness.BrowserTarget) *Session {
	return &Session{
		Target:       t,
		Titles:       make(map[string]string),
		Elements:     make(map[string]*Element),
		PollInterval: 5 * time.Millisecond,
		url:          "about:blank",
	}
}

// Add puts an element on the page and returns it for further scripting.
func (s *Session) Add(loc uiharness.Locator, e *Element) *Element {
	s.Elements[loc.String()] = e
	return e
}

// SetURL changes the current URL, as a page script or redirect would.
func (s *Session) SetURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = u
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Waits returns the recorded WaitForSelector calls.
func (s *Session) Waits() []Wait {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Wait(nil), s.waits...)
}

func (s *Session) hang(ctx context.Context) error {
	if s.Hang == nil {
		return ctx.Err()
	}
	select {
	case <-s.Hang:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.hang(ctx); err != nil {
		return err
	}
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	s.title = s.Titles[url]
	return nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title, ctx.Err()
}

func (s *Session) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, ctx.Err()
}

func (s *Session) Locate(ctx context.Context, loc uiharness.Locator) (uiharness.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.Elements[loc.String()]
	if !ok {
		return nil, &uiharness.ElementNotFoundError{Candidates: []uiharness.Locator{loc}}
	}
	return &boundElement{Element: e, s: s}, nil
}

func (s *Session) WaitForURL(ctx context.Context, pattern uiharness.URLPattern, timeout time.Duration) error {
	return uiharness.Poll(ctx, fmt.Sprintf("wait for URL %s", pattern), timeout, s.PollInterval, func(ctx context.Context) (bool, error) {
		u, err := s.URL(ctx)
		return err == nil && pattern.Match(u), err
	})
}

func (s *Session) WaitForSelector(ctx context.Context, loc uiharness.Locator, state uiharness.State, timeout time.Duration) error {
	start := time.Now()
	err := uiharness.Poll(ctx, fmt.Sprintf("wait for %s to be %s", loc, state), timeout, s.PollInterval, func(context.Context) (bool, error) {
		e, ok := s.Elements[loc.String()]
		switch state {
		case uiharness.Detached:
			return !ok, nil
		case uiharness.Hidden:
			return !ok || !e.Visible, nil
		case uiharness.Visible:
			return ok && e.Visible, nil
		}
		return ok, nil
	})
	s.mu.Lock()
	s.waits = append(s.waits, Wait{Locator: loc, State: state, Timeout: timeout, Elapsed: time.Since(start), Err: err})
	s.mu.Unlock()
	return err
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.hang(ctx); err != nil {
		return nil, err
	}
	if s.ScreenshotErr != nil {
		return nil, s.ScreenshotErr
	}
	return []byte("PNG " + s.Target.Name), nil
}

func (s *Session) Close() error {
	if s.Hang != nil {
		<-s.Hang
	}
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	if s.provider != nil {
		s.provider.record("close " + s.Target.String())
	}
	return s.CloseErr
}

// ConsoleLines implements uiharness.ConsoleReader.
func (s *Session) ConsoleLines(ctx context.Context) []string {
	if err := s.hang(ctx); err != nil {
		return nil
	}
	return s.Console
}

// Element is a scripted page element.
type Element struct {
	Visible bool
	// Text is returned by the Text method.
	Text string
	// Value holds what was last filled in.
	Value string
	// Pressed records the keys sent with Press.
	Pressed []string
	// Clicks counts Click calls.
	Clicks int
	// OnClick and OnPress run after the interaction is recorded.
	OnClick func(s *Session)
	OnPress func(s *Session, key string)
}

type boundElement struct {
	*Element
	s *Session
}

func (e *boundElement) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Value = text
	return nil
}

func (e *boundElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Clicks++
	if e.OnClick != nil {
		e.OnClick(e.s)
	}
	return nil
}

func (e *boundElement) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Pressed = append(e.Pressed, key)
	if e.OnPress != nil {
		e.OnPress(e.s, key)
	}
	return nil
}

func (e *boundElement) Text(ctx context.Context) (string, error) {
	return e.Element.Text, ctx.Err()
}

// Sink is an in-memory uiharness.ArtifactSink.
type Sink struct {
	// Err, if set, is returned by every Save.
	Err error

	mu    sync.Mutex
	saved map[string][]byte
}

// Save implements uiharness.ArtifactSink.
func (s *Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return "mem://" + name, ctx.Err()
}

// Saved returns the artifacts stored so far, keyed by name.
func (s *Sink) Saved() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string][]byte, len(s.saved))
	for k, v := range s.saved {
		m[k] = v
	}
	return m
}
