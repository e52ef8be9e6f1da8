// Package config loads harness suites from YAML files. A suite declares the
// browser targets, the test cases to run against each of them and the
// settings of the provider, the artifact sink and the optional SOCKS5 proxy.
//
// A few settings can be overridden from the environment:
//
//	UIHARNESS_PROVIDER      provider name (webdriver, playwright or chromedp)
//	UIHARNESS_HEADLESS      force every target headless or headed
//	UIHARNESS_ARTIFACT_DIR  local directory for failure screenshots
//	SAUCE_USERNAME          Sauce Labs user for the webdriver provider
//	SAUCE_ACCESS_KEY        Sauce Labs access key
package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/artifact"
	"github.com/wanmail/uiharness/provider/chromedp"
	"github.com/wanmail/uiharness/provider/playwright"
	"github.com/wanmail/uiharness/provider/webdriver"
)

// Provider names.
const (
	WebDriver  = "webdriver"
	Playwright = "playwright"
	Chromedp   = "chromedp"
)

// Suite is the content of a suite file.
type Suite struct {
	// Provider selects the automation backend. Defaults to playwright.
	Provider string `yaml:"provider"`
	// Parallel is the number of targets run at once. Zero or one runs them
	// one after another.
	Parallel int `yaml:"parallel"`
	// TargetTimeout bounds the run of each target. Zero means no bound.
	TargetTimeout time.Duration `yaml:"target_timeout"`
	// CaptureTimeout bounds the capture of a failure screenshot.
	CaptureTimeout time.Duration `yaml:"capture_timeout"`

	Artifacts Artifacts                 `yaml:"artifacts"`
	Targets   []uiharness.BrowserTarget `yaml:"targets"`
	Cases     []Case                    `yaml:"cases"`

	WebDriver  webdriver.Config  `yaml:"webdriver"`
	Playwright playwright.Config `yaml:"playwright"`
	Chromedp   chromedp.Config   `yaml:"chromedp"`

	Proxy Proxy `yaml:"proxy"`
}

// Artifacts selects where failure screenshots go. GCSBucket takes precedence
// over Dir. With neither set no screenshots are taken.
type Artifacts struct {
	Dir       string `yaml:"dir"`
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
}

// Proxy configures the embedded SOCKS5 proxy. Hosts maps host names to the
// address they should resolve to, so a suite written against production
// hosts can run against another deployment.
type Proxy struct {
	Listen string            `yaml:"listen"`
	Hosts  map[string]string `yaml:"hosts"`
}

// Enabled reports whether the proxy should be started.
func (p Proxy) Enabled() bool {
	return p.Listen != ""
}

// env holds the settings read from the environment.
type env struct {
	Provider    string
	Headless    *bool
	ArtifactDir string `split_words:"true"`
}

// Load reads the suite file at path and applies the environment overrides.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a suite, applies the environment overrides and validates the
// result. Unknown fields are rejected.
func Parse(data []byte) (*Suite, error) {
	var s Suite
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.applyEnv(); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &s, nil
}

func (s *Suite) applyEnv() error {
	var e env
	if err := envconfig.Process("uiharness", &e); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if e.Provider != "" {
		s.Provider = e.Provider
	}
	if e.Headless != nil {
		for i := range s.Targets {
			s.Targets[i].Headless = *e.Headless
		}
	}
	if e.ArtifactDir != "" {
		s.Artifacts.Dir = e.ArtifactDir
	}
	if err := envconfig.Process("", &s.WebDriver.Sauce); err != nil {
		return fmt.Errorf("reading Sauce Labs credentials: %w", err)
	}
	return nil
}

func (s *Suite) validate() error {
	if s.Provider == "" {
		s.Provider = Playwright
	}
	switch s.Provider {
	case WebDriver, Playwright, Chromedp:
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got %d", s.Parallel)
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("targets list is required and must be non-empty")
	}
	for i := range s.Targets {
		t := &s.Targets[i]
		e, err := uiharness.ParseEngine(string(t.Engine))
		if err != nil {
			return fmt.Errorf("targets[%d]: %w", i, err)
		}
		t.Engine = e
		if t.Name == "" {
			t.Name = string(e)
		}
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}
	return nil
}

// TestCases returns the cases of the suite in file order.
func (s *Suite) TestCases() []uiharness.TestCase {
	tcs := make([]uiharness.TestCase, len(s.Cases))
	for i, c := range s.Cases {
		tcs[i] = c.TestCase
	}
	return tcs
}

// NewProvider returns the provider selected by the suite. Providers that hold
// resources across launches implement io.Closer.
func (s *Suite) NewProvider() uiharness.Provider {
	switch s.Provider {
	case WebDriver:
		return webdriver.New(s.WebDriver)
	case Chromedp:
		return chromedp.New(s.Chromedp)
	}
	return playwright.New(s.Playwright)
}

// NewSink returns the artifact sink selected by the suite, or nil when no
// screenshots should be stored. Sinks that hold connections implement
// io.Closer.
func (s *Suite) NewSink(ctx context.Context) (uiharness.ArtifactSink, error) {
	switch {
	case s.Artifacts.GCSBucket != "":
		g, err := artifact.NewGCS(ctx, s.Artifacts.GCSBucket, s.Artifacts.GCSPrefix)
		if err != nil {
			return nil, err
		}
		return g, nil
	case s.Artifacts.Dir != "":
		return artifact.Dir(s.Artifacts.Dir), nil
	}
	return nil, nil
}

// RunnerOptions returns the runner options for the suite and sink.
func (s *Suite) RunnerOptions(sink uiharness.ArtifactSink) []uiharness.RunnerOption {
	var opts []uiharness.RunnerOption
	if sink != nil {
		opts = append(opts, uiharness.WithArtifactSink(sink))
	}
	if s.TargetTimeout > 0 {
		opts = append(opts, uiharness.WithTargetTimeout(s.TargetTimeout))
	}
	if s.CaptureTimeout > 0 {
		opts = append(opts, uiharness.WithCaptureTimeout(s.CaptureTimeout))
	}
	if s.Parallel > 1 {
		opts = append(opts, uiharness.WithParallelism(s.Parallel))
	}
	return opts
}

// RouteThrough sets addr as the proxy of every target that has none.
func (s *Suite) RouteThrough(addr string) {
	for i := range s.Targets {
		if s.Targets[i].Proxy == "" {
			s.Targets[i].Proxy = addr
		}
	}
}
