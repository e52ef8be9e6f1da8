package uiharness

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Provider launches browser sessions. Implementations wrap a browser
// automation library; see the provider/ directory.
type Provider interface {
	// Launch opens an isolated browser session for the target. The returned
	// Session owns one page and must be closed by the caller.
	Launch(ctx context.Context, target BrowserTarget) (Session, error)
}

// Session is an open browser context bound to one target. Every method that
// talks to the browser takes a context and must return once it is done.
type Session interface {
	// Navigate loads url in the session's page.
	Navigate(ctx context.Context, url string) error
	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)
	// Locate returns a handle to the element matched by loc.
	Locate(ctx context.Context, loc Locator) (Element, error)
	// WaitForURL waits until the page URL matches pattern. It returns a
	// *TimeoutError if that does not happen within timeout.
	WaitForURL(ctx context.Context, pattern URLPattern, timeout time.Duration) error
	// WaitForSelector waits until the element matched by loc reaches state. It
	// returns a *TimeoutError if that does not happen within timeout.
	WaitForSelector(ctx context.Context, loc Locator, state State, timeout time.Duration) error
	// Screenshot returns a PNG image of the page.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser context and everything it owns.
	Close() error
}

// Element is a handle to a page element.
type Element interface {
	// Fill replaces the element's value with text.
	Fill(ctx context.Context, text string) error
	// Click clicks on the element.
	Click(ctx context.Context) error
	// Press sends a single named key (e.g. "Enter") to the element.
	Press(ctx context.Context, key string) error
	// Text returns the element's text content.
	Text(ctx context.Context) (string, error)
}

// ConsoleReader is implemented by sessions that record the page's console
// output. The Runner attaches these lines to failed outcomes. Implementations
// that ask the browser for the log must give up when ctx ends.
type ConsoleReader interface {
	ConsoleLines(ctx context.Context) []string
}

// State is the element state awaited by WaitForSelector.
type State string

// Element states.
const (
	Attached State = "attached"
	Visible  State = "visible"
	Hidden   State = "hidden"
	Detached State = "detached"
)

// Locator selects page elements, either by CSS selector or by ARIA role and
// accessible name.
type Locator struct {
	CSS  string
	Role string
	Name string
}

// ByCSS returns a Locator for a CSS selector.
func ByCSS(selector string) Locator {
	return Locator{CSS: selector}
}

// ByRole returns a Locator for an ARIA role with the given accessible name.
// An empty name matches any element with the role.
func ByRole(role, name string) Locator {
	return Locator{Role: role, Name: name}
}

// IsRole reports whether the locator selects by role.
func (l Locator) IsRole() bool {
	return l.CSS == "" && l.Role != ""
}

func (l Locator) String() string {
	if l.IsRole() {
		if l.Name == "" {
			return fmt.Sprintf("role=%s", l.Role)
		}
		return fmt.Sprintf("role=%s[name=%q]", l.Role, l.Name)
	}
	return l.CSS
}

// implicitRoles maps ARIA roles to the HTML elements that carry them without
// an explicit role attribute.
var implicitRoles = map[string][]string{
	"textbox":  {"input[not(@type) or @type='text' or @type='email' or @type='password' or @type='search' or @type='tel' or @type='url']", "textarea"},
	"button":   {"button", "input[@type='button' or @type='submit' or @type='reset']"},
	"link":     {"a[@href]"},
	"heading":  {"h1", "h2", "h3", "h4", "h5", "h6"},
	"checkbox": {"input[@type='checkbox']"},
}

// RoleXPath translates a role locator into an XPath expression for providers
// without a native role engine. The accessible name is matched against
// aria-label, placeholder, the name attribute and the element's own text.
func RoleXPath(role, name string) string {
	alts := []string{fmt.Sprintf("*[@role=%s]", xpathLiteral(role))}
	alts = append(alts, implicitRoles[strings.ToLower(role)]...)
	if name == "" {
		return "//" + strings.Join(alts, " | //")
	}
	lit := xpathLiteral(name)
	cond := fmt.Sprintf("[@aria-label=%[1]s or @placeholder=%[1]s or @name=%[1]s or normalize-space(.)=%[1]s or @value=%[1]s]", lit)
	for i, a := range alts {
		alts[i] = "//" + a + cond
	}
	return strings.Join(alts, " | ")
}

// xpathLiteral quotes s for use in an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// URLPattern matches page URLs. Build one with MatchGlob or MatchRegexp.
type URLPattern struct {
	src string
	re  *regexp.Regexp
}

// MatchGlob returns a pattern for a URL glob where "**" matches any sequence
// of characters and "*" any sequence without a slash.
func MatchGlob(glob string) URLPattern {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return URLPattern{src: glob, re: regexp.MustCompile(b.String())}
}

// MatchRegexp returns a pattern matching URLs that contain a match of re.
func MatchRegexp(re *regexp.Regexp) URLPattern {
	return URLPattern{src: re.String(), re: re}
}

// Match reports whether url matches the pattern.
func (p URLPattern) Match(url string) bool {
	if p.re == nil {
		return false
	}
	return p.re.MatchString(url)
}

// Regexp returns the compiled form of the pattern.
func (p URLPattern) Regexp() *regexp.Regexp {
	return p.re
}

func (p URLPattern) String() string {
	return p.src
}
