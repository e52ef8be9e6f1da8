// Package webdriver implements uiharness.Provider on top of the W3C WebDriver
// protocol, using github.com/tebeka/selenium.
//
// A session is either served by a local ChromeDriver or GeckoDriver process
// started for it, by a remote WebDriver endpoint such as a Selenium grid, or
// by Sauce Labs. Local drivers can be run inside an Xvfb frame buffer.
package webdriver

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"
	"github.com/tebeka/selenium/log"
	"github.com/tebeka/selenium/sauce"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/internal/blocking"
	"github.com/wanmail/uiharness/internal/version"
)

// DefaultLocateTimeout is how long Locate waits for an element to appear.
const DefaultLocateTimeout = 5 * time.Second

// DefaultCloseTimeout bounds each step of closing a session.
const DefaultCloseTimeout = 30 * time.Second

// Sauce holds Sauce Labs credentials. Sessions are created on Sauce Labs when
// User is set.
type Sauce struct {
	User      string `yaml:"user" envconfig:"SAUCE_USERNAME"`
	AccessKey string `yaml:"access_key" envconfig:"SAUCE_ACCESS_KEY"`
	Platform  string `yaml:"platform" envconfig:"SAUCE_PLATFORM"`
}

// Config configures the Provider.
type Config struct {
	// ChromeDriver and GeckoDriver are the paths of the driver binaries
	// started for local sessions.
	ChromeDriver string `yaml:"chromedriver"`
	GeckoDriver  string `yaml:"geckodriver"`
	// Executor is the URL of a remote WebDriver endpoint. When set, no local
	// driver is started.
	Executor string `yaml:"executor"`
	// FrameBuffer starts an Xvfb frame buffer for each local driver.
	FrameBuffer bool  `yaml:"frame_buffer"`
	Sauce       Sauce `yaml:"sauce"`
	// LocateTimeout bounds the implicit wait of Locate. Zero means
	// DefaultLocateTimeout.
	LocateTimeout time.Duration `yaml:"locate_timeout"`
	// CloseTimeout bounds quitting the session and stopping the driver. Zero
	// means DefaultCloseTimeout.
	CloseTimeout time.Duration `yaml:"close_timeout"`
	// DriverOutput receives the output of local driver processes.
	DriverOutput io.Writer `yaml:"-"`
}

// Provider launches WebDriver sessions.
type Provider struct {
	cfg Config
}

// New returns a Provider using cfg.
func New(cfg Config) *Provider {
	if cfg.ChromeDriver == "" {
		cfg.ChromeDriver = "chromedriver"
	}
	if cfg.GeckoDriver == "" {
		cfg.GeckoDriver = "geckodriver"
	}
	if cfg.LocateTimeout <= 0 {
		cfg.LocateTimeout = DefaultLocateTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	return &Provider{cfg: cfg}
}

// Launch implements uiharness.Provider. Starting a driver and creating a
// session cannot be interrupted, so if ctx ends first Launch returns and the
// late session is closed in the background.
func (p *Provider) Launch(ctx context.Context, t uiharness.BrowserTarget) (uiharness.Session, error) {
	s, err := blocking.Start(ctx, func() (*session, error) { return p.launch(t) }, func(s *session) { s.Close() })
	if err != nil {
		return nil, &uiharness.LaunchError{Target: t.String(), Err: err}
	}
	return uiharness.SlowMotion(s, t.SlowMo), nil
}

func (p *Provider) launch(t uiharness.BrowserTarget) (*session, error) {
	caps, err := Capabilities(t, p.cfg.Sauce)
	if err != nil {
		return nil, err
	}

	var (
		svc  *selenium.Service
		addr string
	)
	switch {
	case p.cfg.Sauce.User != "":
		addr = sauce.Addr(p.cfg.Sauce.User, p.cfg.Sauce.AccessKey)
	case p.cfg.Executor != "":
		addr = p.cfg.Executor
	default:
		svc, addr, err = p.startService(t.Engine)
		if err != nil {
			return nil, err
		}
	}

	glog.V(1).Infof("%s: creating WebDriver session at %s", t, redact(addr))
	wd, err := selenium.NewRemote(caps, addr)
	if err != nil {
		stopService(svc)
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s := &session{
		wd:            wd,
		svc:           svc,
		locateTimeout: p.cfg.LocateTimeout,
		closeTimeout:  p.cfg.CloseTimeout,
		interval:      uiharness.DefaultPollInterval,
	}

	if t.MinVersion != "" {
		got, err := wd.Capabilities()
		if err == nil {
			err = checkVersion(got, t.MinVersion)
		}
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (p *Provider) startService(e uiharness.Engine) (*selenium.Service, string, error) {
	port, err := pickUnusedPort()
	if err != nil {
		return nil, "", fmt.Errorf("picking a port for the driver: %w", err)
	}
	var opts []selenium.ServiceOption
	if p.cfg.FrameBuffer {
		opts = append(opts, selenium.StartFrameBuffer())
	}
	if p.cfg.DriverOutput != nil {
		opts = append(opts, selenium.Output(p.cfg.DriverOutput))
	}

	switch e {
	case uiharness.Chromium:
		svc, err := selenium.NewChromeDriverService(p.cfg.ChromeDriver, port, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("starting chromedriver %q: %w", p.cfg.ChromeDriver, err)
		}
		return svc, fmt.Sprintf("http://localhost:%d/wd/hub", port), nil
	case uiharness.Firefox:
		svc, err := selenium.NewGeckoDriverService(p.cfg.GeckoDriver, port, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("starting geckodriver %q: %w", p.cfg.GeckoDriver, err)
		}
		return svc, fmt.Sprintf("http://localhost:%d", port), nil
	}
	return nil, "", fmt.Errorf("no local WebDriver for engine %q; use a remote executor", e)
}

func stopService(svc *selenium.Service) {
	if svc == nil {
		return
	}
	if err := svc.Stop(); err != nil {
		glog.Warningf("stopping WebDriver service: %v", err)
	}
}

// pickUnusedPort returns a free TCP port on the loopback interface.
func pickUnusedPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, err
	}
	return port, nil
}

// redact hides the credentials embedded in a Sauce Labs address.
func redact(addr string) string {
	if i := strings.Index(addr, "@"); i >= 0 {
		if j := strings.Index(addr, "://"); j >= 0 && j < i {
			return addr[:j+3] + "xxxxx" + addr[i:]
		}
	}
	return addr
}

var browserNames = map[uiharness.Engine]string{
	uiharness.Chromium: "chrome",
	uiharness.Firefox:  "firefox",
	uiharness.WebKit:   "safari",
}

// Capabilities returns the WebDriver capabilities requesting a browser for t.
// If sc names a Sauce Labs user, the Sauce Labs options are merged in.
func Capabilities(t uiharness.BrowserTarget, sc Sauce) (selenium.Capabilities, error) {
	name, ok := browserNames[t.Engine]
	if !ok {
		return nil, fmt.Errorf("unknown browser engine %q", t.Engine)
	}
	caps := selenium.Capabilities{"browserName": name}

	switch t.Engine {
	case uiharness.Chromium:
		args := append([]string(nil), t.Args...)
		if t.Headless {
			args = append(args, "--headless=new", "--no-sandbox")
		}
		caps.AddChrome(chrome.Capabilities{Path: t.Binary, Args: args, W3C: true})
		caps.AddLogging(log.Capabilities{log.Browser: log.All})
	case uiharness.Firefox:
		args := append([]string(nil), t.Args...)
		if t.Headless {
			args = append(args, "-headless")
		}
		caps.AddFirefox(firefox.Capabilities{Binary: t.Binary, Args: args})
	}

	if t.Proxy != "" {
		caps.AddProxy(selenium.Proxy{
			Type:         selenium.Manual,
			SOCKS:        t.Proxy,
			SOCKSVersion: 5,
		})
	}

	if sc.User != "" {
		m, err := (&sauce.Capabilities{
			Browser:  name,
			Platform: sc.Platform,
			TestName: t.String(),
		}).ToMap()
		if err != nil {
			return nil, fmt.Errorf("sauce capabilities: %w", err)
		}
		for k, v := range m {
			caps[k] = v
		}
	}
	return caps, nil
}

// checkVersion returns an error if the browser version reported in caps is
// below min.
func checkVersion(caps selenium.Capabilities, min string) error {
	var reported string
	for _, k := range []string{"browserVersion", "version"} {
		if v, ok := caps[k].(string); ok && v != "" {
			reported = v
			break
		}
	}
	return version.AtLeast(reported, min)
}
