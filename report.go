package uiharness

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Status is the result of running a target's test cases.
type Status string

// Outcome statuses.
const (
	Passed Status = "passed"
	Failed Status = "failed"
)

// Outcome is the recorded result of one target.
type Outcome struct {
	Status Status `json:"status"`
	Kind   Kind   `json:"kind"`
	// Case is the name of the test case that failed. Empty for launch failures
	// and passed outcomes.
	Case string `json:"case,omitempty"`
	// Reason is the error text of the failure.
	Reason string `json:"reason,omitempty"`
	// Artifact is where the diagnostic screenshot was stored, if any.
	Artifact string `json:"artifact,omitempty"`
	// Console holds the page console output captured at failure time.
	Console  []string      `json:"console,omitempty"`
	Duration time.Duration `json:"duration"`

	err error
}

// Err returns the error that caused a failed outcome.
func (o Outcome) Err() error {
	return o.err
}

func passed(d time.Duration) Outcome {
	return Outcome{Status: Passed, Kind: KindNone, Duration: d}
}

func failed(caseName string, err error) Outcome {
	return Outcome{
		Status: Failed,
		Kind:   Classify(err),
		Case:   caseName,
		Reason: err.Error(),
		err:    err,
	}
}

// Entry pairs a target with its outcome.
type Entry struct {
	Target  BrowserTarget `json:"target"`
	Outcome Outcome       `json:"outcome"`
}

// Report is the ordered collection of per-target outcomes. Entries appear in
// the order the targets were given to the Runner.
type Report struct {
	Entries []Entry `json:"entries"`
}

// Total returns the number of targets in the report.
func (r *Report) Total() int {
	return len(r.Entries)
}

// Passed returns the number of targets that passed.
func (r *Report) Passed() int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome.Status == Passed {
			n++
		}
	}
	return n
}

// Failed returns the number of targets that failed.
func (r *Report) Failed() int {
	return r.Total() - r.Passed()
}

// OK reports whether every target passed.
func (r *Report) OK() bool {
	return r.Failed() == 0
}

// Summary returns the closing line of a rendered report.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d/%d targets passed.", r.Passed(), r.Total())
}

type renderOptions struct {
	color bool
}

// RenderOption configures Render.
type RenderOption func(*renderOptions)

// WithColor marks pass and fail lines with ANSI colors.
func WithColor() RenderOption {
	return func(o *renderOptions) {
		o.color = true
	}
}

// Render formats the report: one line per target, followed by the summary. It
// has no side effects; callers decide where the text goes.
func Render(r *Report, opts ...RenderOption) string {
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}
	pass, fail := "PASS", "FAIL"
	if o.color {
		g := color.New(color.FgGreen, color.Bold)
		g.EnableColor()
		rd := color.New(color.FgRed, color.Bold)
		rd.EnableColor()
		pass, fail = g.Sprint(pass), rd.Sprint(fail)
	}

	var b strings.Builder
	for _, e := range r.Entries {
		if e.Outcome.Status == Passed {
			fmt.Fprintf(&b, "%s %s\n", pass, e.Target)
			continue
		}
		fmt.Fprintf(&b, "%s %s: ", fail, e.Target)
		if e.Outcome.Case != "" {
			fmt.Fprintf(&b, "%s: ", e.Outcome.Case)
		}
		b.WriteString(oneLine(e.Outcome.Reason))
		if e.Outcome.Artifact != "" {
			fmt.Fprintf(&b, " [screenshot: %s]", e.Outcome.Artifact)
		}
		b.WriteByte('\n')
	}
	b.WriteString(r.Summary())
	b.WriteByte('\n')
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
