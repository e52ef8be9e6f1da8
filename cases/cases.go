// Package cases contains ready-made test cases for common page checks: a
// title check, positive and negative login flows against a form with
// data-test attributes, and a search that probes several possible result
// layouts.
//
// Every case is a plain struct; zero fields fall back to the defaults
// declared in this package.
package cases

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/wanmail/uiharness"
)

// Defaults shared by the login cases.
const (
	DefaultLoginURL     = "https://saucedemo.com"
	DefaultUsername     = "standard_user"
	DefaultPassword     = "secret_sauce"
	DefaultLockedOut    = "locked_out_user"
	DefaultLanding      = "**/inventory.html"
	DefaultLoginTimeout = 5 * time.Second
	DefaultErrorText    = "epic sadface"
)

// Defaults of the Title case.
const (
	DefaultTitleURL  = "https://www.baidu.com"
	DefaultTitleWant = "百度一下"
)

// Defaults of the Search case.
const (
	DefaultSearchURL    = "https://baidu.com/"
	DefaultSearchInput  = "#chat-textarea"
	DefaultSearchQuery  = "Playwright"
	DefaultURLTimeout   = 15 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// DefaultResults are the result containers probed by Search, in order.
var DefaultResults = []string{
	"#wrapper_wrapper",
	"li.b_algo",
	".b_algo",
	"#b_results",
	"#b_content",
	".sb_tlst",
	".b_vList",
}

var (
	_ uiharness.TestCase = Title{}
	_ uiharness.TestCase = ValidLogin{}
	_ uiharness.TestCase = InvalidLogin{}
	_ uiharness.TestCase = Search{}
)

// Locators of the login form.
var (
	usernameField = uiharness.ByCSS(`[data-test="username"]`)
	passwordField = uiharness.ByCSS(`[data-test="password"]`)
	loginButton   = uiharness.ByCSS(`[data-test="login-button"]`)
	loginError    = uiharness.ByCSS(`[data-test="error"]`)
)

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func fill(ctx context.Context, s uiharness.Session, loc uiharness.Locator, text string) error {
	e, err := s.Locate(ctx, loc)
	if err != nil {
		return err
	}
	if err := e.Fill(ctx, text); err != nil {
		return fmt.Errorf("fill %s: %w", loc, err)
	}
	return nil
}

func click(ctx context.Context, s uiharness.Session, loc uiharness.Locator) error {
	e, err := s.Locate(ctx, loc)
	if err != nil {
		return err
	}
	if err := e.Click(ctx); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// Title navigates to URL and checks that the page title contains Want.
type Title struct {
	URL  string `yaml:"url"`
	Want string `yaml:"want"`
}

func (Title) Name() string { return "title" }

func (c Title) Run(ctx context.Context, s uiharness.Session) error {
	url, want := or(c.URL, DefaultTitleURL), or(c.Want, DefaultTitleWant)
	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	title, err := s.Title(ctx)
	if err != nil {
		return err
	}
	glog.Infof("page title of %s: %q", url, title)
	if !strings.Contains(title, want) {
		return &uiharness.AssertionError{
			Step:     "title",
			Expected: fmt.Sprintf("title containing %q", want),
			Actual:   title,
		}
	}
	return nil
}

// ValidLogin signs in with working credentials and expects to land on the
// page matched by Landing.
type ValidLogin struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Landing  string        `yaml:"landing"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (ValidLogin) Name() string { return "valid login" }

func (c ValidLogin) Run(ctx context.Context, s uiharness.Session) error {
	user, pass := or(c.Username, DefaultUsername), or(c.Password, DefaultPassword)
	if err := s.Navigate(ctx, or(c.URL, DefaultLoginURL)); err != nil {
		return err
	}
	// The form is filled twice, by accessible role and by data-test
	// attribute, so that both locator strategies are exercised.
	steps := []struct {
		loc  uiharness.Locator
		text string
	}{
		{uiharness.ByRole("textbox", "Username"), user},
		{uiharness.ByRole("textbox", "Password"), pass},
		{usernameField, user},
		{passwordField, pass},
	}
	for _, st := range steps {
		if err := fill(ctx, s, st.loc, st.text); err != nil {
			return err
		}
	}
	if err := click(ctx, s, loginButton); err != nil {
		return err
	}

	landing := or(c.Landing, DefaultLanding)
	if err := s.WaitForURL(ctx, uiharness.MatchGlob(landing), orDuration(c.Timeout, DefaultLoginTimeout)); err != nil {
		return err
	}
	u, err := s.URL(ctx)
	if err != nil {
		return err
	}
	if want := strings.TrimLeft(landing, "*"); !strings.Contains(u, want) {
		return &uiharness.AssertionError{
			Step:     "landing page",
			Expected: fmt.Sprintf("URL containing %q", want),
			Actual:   u,
		}
	}
	return nil
}

// InvalidLogin signs in with a locked out account and expects the login form
// to show an error containing ErrorText, compared case-insensitively.
type InvalidLogin struct {
	URL       string        `yaml:"url"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	ErrorText string        `yaml:"error_text"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (InvalidLogin) Name() string { return "invalid login" }

func (c InvalidLogin) Run(ctx context.Context, s uiharness.Session) error {
	if err := s.Navigate(ctx, or(c.URL, DefaultLoginURL)); err != nil {
		return err
	}
	if err := fill(ctx, s, usernameField, or(c.Username, DefaultLockedOut)); err != nil {
		return err
	}
	if err := fill(ctx, s, passwordField, or(c.Password, DefaultPassword)); err != nil {
		return err
	}
	if err := click(ctx, s, loginButton); err != nil {
		return err
	}
	if err := s.WaitForSelector(ctx, loginError, uiharness.Visible, orDuration(c.Timeout, DefaultLoginTimeout)); err != nil {
		return err
	}
	e, err := s.Locate(ctx, loginError)
	if err != nil {
		return err
	}
	text, err := e.Text(ctx)
	if err != nil {
		return err
	}
	want := or(c.ErrorText, DefaultErrorText)
	if !strings.Contains(strings.ToLower(text), strings.ToLower(want)) {
		return &uiharness.AssertionError{
			Step:     "error message",
			Expected: fmt.Sprintf("text containing %q", want),
			Actual:   text,
		}
	}
	return nil
}

// Search submits Query through the Input field, then looks for the first
// visible element among Results. Pages that answer a search with different
// layouts are handled by listing one selector per layout.
type Search struct {
	URL          string        `yaml:"url"`
	Input        string        `yaml:"input"`
	Query        string        `yaml:"query"`
	Results      []string      `yaml:"results"`
	URLTimeout   time.Duration `yaml:"url_timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

func (Search) Name() string { return "search" }

func (c Search) Run(ctx context.Context, s uiharness.Session) error {
	query := or(c.Query, DefaultSearchQuery)
	if err := s.Navigate(ctx, or(c.URL, DefaultSearchURL)); err != nil {
		return err
	}
	input, err := s.Locate(ctx, uiharness.ByCSS(or(c.Input, DefaultSearchInput)))
	if err != nil {
		return err
	}
	if err := input.Fill(ctx, query); err != nil {
		return err
	}
	if err := input.Press(ctx, "Enter"); err != nil {
		return err
	}

	// The query showing up in the URL is only an early signal; the result
	// probe below decides.
	re := regexp.MustCompile(`(?i)q=` + regexp.QuoteMeta(query))
	if err := s.WaitForURL(ctx, uiharness.MatchRegexp(re), orDuration(c.URLTimeout, DefaultURLTimeout)); err != nil {
		if !uiharness.IsTimeout(err) || ctx.Err() != nil {
			return err
		}
		glog.V(1).Infof("search: URL never matched %s, probing results anyway", re)
	}

	results := c.Results
	if len(results) == 0 {
		results = DefaultResults
	}
	candidates := make([]uiharness.Locator, len(results))
	for i, r := range results {
		candidates[i] = uiharness.ByCSS(r)
	}
	i, err := uiharness.Probe(ctx, s, candidates, orDuration(c.ProbeTimeout, DefaultProbeTimeout))
	if err != nil {
		return err
	}
	title, _ := s.Title(ctx)
	glog.Infof("search: results found with %s, page title %q", candidates[i], title)
	return nil
}
