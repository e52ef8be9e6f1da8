// Package version compares browser versions against a minimum.
package version

import (
	"fmt"
	"strings"

	"github.com/blang/semver"
)

// Parse accepts browser versions such as "120.0.6099.109", "115" or
// "HeadlessChrome/120.0.6099.109", keeping at most three numeric components.
func Parse(s string) (semver.Version, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	parts := strings.SplitN(s, ".", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return semver.ParseTolerant(strings.Join(parts, "."))
}

// AtLeast returns an error if the reported version is older than min.
func AtLeast(reported, min string) error {
	want, err := Parse(min)
	if err != nil {
		return fmt.Errorf("invalid minimum version %q: %w", min, err)
	}
	if reported == "" {
		return fmt.Errorf("browser did not report its version; cannot check minimum %s", min)
	}
	got, err := Parse(reported)
	if err != nil {
		return fmt.Errorf("unparsable browser version %q: %w", reported, err)
	}
	if got.LT(want) {
		return fmt.Errorf("browser version %s is older than the minimum %s", reported, min)
	}
	return nil
}
