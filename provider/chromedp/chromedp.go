// Package chromedp implements uiharness.Provider over the Chrome DevTools
// Protocol with github.com/chromedp/chromedp. Only the chromium engine is
// supported.
package chromedp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/golang/glog"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/internal/version"
)

// Config configures the Provider.
type Config struct {
	// FullPage makes failure screenshots cover the whole scrollable page.
	FullPage bool `yaml:"full_page"`
	// ActionTimeout bounds element actions when the context has no deadline.
	// Zero means DefaultActionTimeout.
	ActionTimeout time.Duration `yaml:"action_timeout"`
	// LocateTimeout bounds Locate. Zero means DefaultLocateTimeout.
	LocateTimeout time.Duration `yaml:"locate_timeout"`
}

// DefaultActionTimeout bounds element actions when the context has no
// deadline.
const DefaultActionTimeout = 30 * time.Second

// DefaultLocateTimeout is how long Locate waits for an element to appear.
const DefaultLocateTimeout = 5 * time.Second

// Provider launches Chrome or Chromium through the DevTools protocol.
type Provider struct {
	cfg Config
}

// New returns a Provider using cfg.
func New(cfg Config) *Provider {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.LocateTimeout <= 0 {
		cfg.LocateTimeout = DefaultLocateTimeout
	}
	return &Provider{cfg: cfg}
}

// Launch implements uiharness.Provider. The browser lives until the session
// is closed; ctx only bounds the start.
func (p *Provider) Launch(ctx context.Context, t uiharness.BrowserTarget) (uiharness.Session, error) {
	if t.Engine != uiharness.Chromium {
		return nil, &uiharness.LaunchError{Target: t.String(), Err: fmt.Errorf("engine %q is not supported over the DevTools protocol", t.Engine)}
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(t)...)
	bctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(glog.V(2).Infof))
	s := &session{
		ctx:           bctx,
		cancel:        func() { cancel(); allocCancel() },
		fullPage:      p.cfg.FullPage,
		actionTimeout: p.cfg.ActionTimeout,
		locateTimeout: p.cfg.LocateTimeout,
		interval:      uiharness.DefaultPollInterval,
	}
	chromedp.ListenTarget(bctx, s.listen)

	// The browser lives as long as the context of its first Run, so the start
	// is bounded by tearing the browser down when ctx ends.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(bctx)
	if !stop() || err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		s.Close()
		return nil, &uiharness.LaunchError{Target: t.String(), Err: err}
	}
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		glog.V(1).Infof("%s: launched %s", t, product)
		if t.MinVersion != "" {
			return version.AtLeast(product, t.MinVersion)
		}
		return nil
	}))
	if err != nil {
		s.Close()
		return nil, &uiharness.LaunchError{Target: t.String(), Err: err}
	}
	return uiharness.SlowMotion(s, t.SlowMo), nil
}

// allocatorOptions returns the Chrome command line for t, starting from the
// chromedp defaults.
func allocatorOptions(t uiharness.BrowserTarget) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", t.Headless))
	if t.Headless {
		opts = append(opts, chromedp.NoSandbox)
	}
	if t.Binary != "" {
		opts = append(opts, chromedp.ExecPath(t.Binary))
	}
	if t.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer("socks5://"+t.Proxy))
	}
	for _, a := range t.Args {
		name, value := parseFlag(a)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits a command line switch such as "--lang=en" or
// "--disable-gpu" into the name and value chromedp.Flag expects.
func parseFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

// consoleText formats the arguments of a console API call the way the
// DevTools console shows them.
func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case len(a.Value) > 0:
			var s string
			if err := json.Unmarshal([]byte(a.Value), &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(a.Value))
			}
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}

type session struct {
	ctx           context.Context
	cancel        func()
	fullPage      bool
	actionTimeout time.Duration
	locateTimeout time.Duration
	interval      time.Duration

	mu      sync.Mutex
	console []string

	closeOnce sync.Once
}

func (s *session) listen(ev interface{}) {
	var line string
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		line = fmt.Sprintf("%s: %s", ev.Type, consoleText(ev.Args))
	case *runtime.EventExceptionThrown:
		line = fmt.Sprintf("exception: %s", ev.ExceptionDetails.Error())
	default:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console = append(s.console, line)
}

// ConsoleLines returns the console messages and uncaught exceptions of the
// page so far.
func (s *session) ConsoleLines(context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.console...)
}

// run executes actions on the browser tab, bounded by ctx.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var c context.CancelFunc
		rctx, c = context.WithDeadline(rctx, dl)
		defer c()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// act runs an element action bounded by the action timeout.
func (s *session) act(ctx context.Context, op string, actions ...chromedp.Action) error {
	return s.actWithin(ctx, op, s.actionTimeout, actions...)
}

func (s *session) actWithin(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.run(actx, actions...)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &uiharness.TimeoutError{Op: op, Timeout: timeout}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return s.act(ctx, "navigate to "+url, chromedp.Navigate(url))
}

func (s *session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

func (s *session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

// query returns the chromedp selector and query option for loc.
func query(loc uiharness.Locator) (string, chromedp.QueryOption) {
	if loc.IsRole() {
		return uiharness.RoleXPath(loc.Role, loc.Name), chromedp.BySearch
	}
	return loc.CSS, chromedp.ByQuery
}

func (s *session) Locate(ctx context.Context, loc uiharness.Locator) (uiharness.Element, error) {
	sel, by := query(loc)
	err := s.actWithin(ctx, fmt.Sprintf("locate %s", loc), s.locateTimeout, chromedp.WaitReady(sel, by))
	if uiharness.IsTimeout(err) && ctx.Err() == nil {
		return nil, &uiharness.ElementNotFoundError{Candidates: []uiharness.Locator{loc}}
	}
	if err != nil {
		return nil, err
	}
	return &element{s: s, loc: loc, sel: sel, by: by}, nil
}

type elementState struct {
	Present bool `json:"present"`
	Visible bool `json:"visible"`
}

// stateScript returns a JavaScript expression reporting whether the first
// element matched by loc is present and visible.
func stateScript(loc uiharness.Locator) string {
	var find string
	if loc.IsRole() {
		x, _ := json.Marshal(uiharness.RoleXPath(loc.Role, loc.Name))
		find = fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", x)
	} else {
		c, _ := json.Marshal(loc.CSS)
		find = fmt.Sprintf("document.querySelector(%s)", c)
	}
	return `(() => {
	const el = ` + find + `;
	if (!el) return {present: false, visible: false};
	const st = window.getComputedStyle(el);
	const box = el.getBoundingClientRect();
	return {present: true, visible: st.visibility !== 'hidden' && st.display !== 'none' && box.width > 0 && box.height > 0};
})()`
}

func (s *session) WaitForSelector(ctx context.Context, loc uiharness.Locator, state uiharness.State, timeout time.Duration) error {
	script := stateScript(loc)
	return uiharness.Poll(ctx, fmt.Sprintf("wait for %s to be %s", loc, state), timeout, s.interval, func(ctx context.Context) (bool, error) {
		var st elementState
		if err := s.run(ctx, chromedp.Evaluate(script, &st)); err != nil {
			return false, err
		}
		return stateReached(st, state), nil
	})
}

func stateReached(st elementState, want uiharness.State) bool {
	switch want {
	case uiharness.Attached:
		return st.Present
	case uiharness.Detached:
		return !st.Present
	case uiharness.Hidden:
		return !st.Visible
	}
	return st.Visible
}

func (s *session) WaitForURL(ctx context.Context, pattern uiharness.URLPattern, timeout time.Duration) error {
	return uiharness.Poll(ctx, fmt.Sprintf("wait for URL %s", pattern), timeout, s.interval, func(ctx context.Context) (bool, error) {
		u, err := s.URL(ctx)
		if err != nil {
			return false, err
		}
		return pattern.Match(u), nil
	})
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if s.fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close shuts the browser down.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.ctx)
		s.cancel()
	})
	return err
}

type element struct {
	s   *session
	loc uiharness.Locator
	sel string
	by  chromedp.QueryOption
}

func (e *element) Fill(ctx context.Context, text string) error {
	return e.s.act(ctx, fmt.Sprintf("fill %s", e.loc),
		chromedp.Clear(e.sel, e.by),
		chromedp.SendKeys(e.sel, text, e.by),
	)
}

func (e *element) Click(ctx context.Context) error {
	return e.s.act(ctx, fmt.Sprintf("click %s", e.loc), chromedp.Click(e.sel, e.by))
}

func (e *element) Press(ctx context.Context, key string) error {
	k, err := keyCode(key)
	if err != nil {
		return err
	}
	return e.s.act(ctx, fmt.Sprintf("press %s on %s", key, e.loc), chromedp.SendKeys(e.sel, k, e.by))
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.s.act(ctx, fmt.Sprintf("text of %s", e.loc), chromedp.Text(e.sel, &text, e.by))
	return text, err
}
