// Package playwright implements uiharness.Provider with
// github.com/playwright-community/playwright-go. It supports the chromium,
// firefox and webkit engines, native slow motion and role locators.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/playwright-community/playwright-go"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/internal/blocking"
)

// Config configures the Provider.
type Config struct {
	// Install downloads the Playwright driver and the browsers it needs
	// before the first launch.
	Install bool `yaml:"install"`
	// FullPage makes failure screenshots cover the whole scrollable page.
	FullPage bool `yaml:"full_page"`
}

// Provider launches Playwright browsers. It owns one Playwright driver
// process, started on the first Launch and stopped by Close.
type Provider struct {
	cfg Config

	mu  sync.Mutex
	pw  *playwright.Playwright
	err error
}

// New returns a Provider using cfg.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) driver() (*playwright.Playwright, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw != nil || p.err != nil {
		return p.pw, p.err
	}
	if p.cfg.Install {
		glog.Info("installing the Playwright driver and browsers")
		if err := playwright.Install(); err != nil {
			p.err = fmt.Errorf("installing playwright: %w", err)
			return nil, p.err
		}
	}
	p.pw, p.err = playwright.Run()
	if p.err != nil {
		p.err = fmt.Errorf("starting playwright: %w", p.err)
	}
	return p.pw, p.err
}

// Close stops the Playwright driver. Sessions must be closed first.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pw == nil {
		return nil
	}
	err := p.pw.Stop()
	p.pw = nil
	return err
}

// Launch implements uiharness.Provider.
func (p *Provider) Launch(ctx context.Context, t uiharness.BrowserTarget) (uiharness.Session, error) {
	s, err := blocking.Start(ctx, func() (*session, error) { return p.launch(t) }, func(s *session) { s.Close() })
	if err != nil {
		return nil, &uiharness.LaunchError{Target: t.String(), Err: err}
	}
	return s, nil
}

func (p *Provider) launch(t uiharness.BrowserTarget) (*session, error) {
	pw, err := p.driver()
	if err != nil {
		return nil, err
	}
	var bt playwright.BrowserType
	switch t.Engine {
	case uiharness.Chromium:
		bt = pw.Chromium
	case uiharness.Firefox:
		bt = pw.Firefox
	case uiharness.WebKit:
		bt = pw.WebKit
	default:
		return nil, fmt.Errorf("unknown browser engine %q", t.Engine)
	}

	browser, err := bt.Launch(launchOptions(t))
	if err != nil {
		return nil, err
	}
	bctx, err := browser.NewContext()
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	s := &session{browser: browser, bctx: bctx, page: page, fullPage: p.cfg.FullPage}
	page.OnConsole(func(m playwright.ConsoleMessage) {
		s.addConsole(consoleLine(m.Type(), m.Text()))
	})
	glog.V(1).Infof("%s: launched %s %s", t, t.Engine, browser.Version())
	return s, nil
}

// launchOptions translates a target into Playwright launch options.
func launchOptions(t uiharness.BrowserTarget) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(t.Headless),
		Args:     t.Args,
	}
	if t.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(t.SlowMo.Milliseconds()))
	}
	if t.Binary != "" {
		opts.ExecutablePath = playwright.String(t.Binary)
	}
	if t.Proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: "socks5://" + t.Proxy}
	}
	return opts
}

func consoleLine(typ, text string) string {
	return fmt.Sprintf("%s: %s", typ, text)
}

// timeoutMS returns the Playwright timeout, in milliseconds, for an operation
// bounded by d and by the deadline of ctx, whichever comes first. Playwright
// treats zero as no timeout, so the result is at least one.
func timeoutMS(ctx context.Context, d time.Duration) float64 {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); d <= 0 || left < d {
			d = left
		}
	}
	if d <= 0 {
		return 1
	}
	ms := float64(d.Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return ms
}

// wrapTimeout turns a Playwright timeout into a uiharness.TimeoutError.
func wrapTimeout(err error, op string, d time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &uiharness.TimeoutError{Op: op, Timeout: d, Last: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var waitStates = map[uiharness.State]*playwright.WaitForSelectorState{
	uiharness.Attached: playwright.WaitForSelectorStateAttached,
	uiharness.Visible:  playwright.WaitForSelectorStateVisible,
	uiharness.Hidden:   playwright.WaitForSelectorStateHidden,
	uiharness.Detached: playwright.WaitForSelectorStateDetached,
}

func waitState(s uiharness.State) (*playwright.WaitForSelectorState, error) {
	if st, ok := waitStates[s]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("unknown element state %q", s)
}
