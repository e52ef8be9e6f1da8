package uiharness

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Engine identifies a browser engine.
type Engine string

// The supported browser engines.
const (
	Chromium Engine = "chromium"
	Firefox  Engine = "firefox"
	WebKit   Engine = "webkit"
)

// ParseEngine converts a user-supplied engine name into an Engine. Common
// browser names are accepted as aliases.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chromium", "chrome":
		return Chromium, nil
	case "firefox", "gecko":
		return Firefox, nil
	case "webkit", "safari":
		return WebKit, nil
	}
	return "", fmt.Errorf("unknown browser engine %q", s)
}

// BrowserTarget describes one browser configuration to validate against.
// Targets are plain values; the Runner never modifies them.
type BrowserTarget struct {
	// Name is the display name used in logs, reports and artifact names.
	Name string `json:"name" yaml:"name"`
	// Engine selects the browser engine.
	Engine Engine `json:"engine" yaml:"engine"`
	// Headless runs the browser without a visible window.
	Headless bool `json:"headless" yaml:"headless"`
	// SlowMo delays every interaction with the page by this amount.
	SlowMo time.Duration `json:"slowMo,omitempty" yaml:"slow_mo,omitempty"`
	// Args are extra command-line arguments for the browser binary.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Binary is the path to the browser binary. If empty, the provider picks
	// its default.
	Binary string `json:"binary,omitempty" yaml:"binary,omitempty"`
	// MinVersion is the lowest acceptable browser version, e.g. "115". Only
	// enforced by providers that can report the browser version.
	MinVersion string `json:"minVersion,omitempty" yaml:"min_version,omitempty"`
	// Proxy is the host:port of a SOCKS5 proxy the browser should use.
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// Slug returns a lower-case, file-name safe form of the target name. Letters
// and digits of any script are kept; everything else becomes a dash.
func (t BrowserTarget) Slug() string {
	name := t.Name
	if name == "" {
		name = string(t.Engine)
	}
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (t BrowserTarget) String() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.Engine)
}
