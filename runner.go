package uiharness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/wanmail/uiharness/internal/blocking"
)

// ArtifactSink stores diagnostic artifacts. Save returns the location the
// artifact was written to. See package artifact for implementations.
type ArtifactSink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// DefaultCaptureTimeout bounds the capture and storage of a failure screenshot,
// and separately the reading of the console log.
const DefaultCaptureTimeout = 10 * time.Second

// DefaultCloseTimeout bounds closing a session.
const DefaultCloseTimeout = 30 * time.Second

// Runner runs test cases against a list of browser targets.
type Runner struct {
	provider       Provider
	sink           ArtifactSink
	targetTimeout  time.Duration
	captureTimeout time.Duration
	closeTimeout   time.Duration
	parallelism    int
	now            func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithArtifactSink sets where failure screenshots are stored. Without a sink
// no screenshots are captured.
func WithArtifactSink(sink ArtifactSink) RunnerOption {
	return func(r *Runner) {
		r.sink = sink
	}
}

// WithTargetTimeout bounds the whole run of one target, launch included.
func WithTargetTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.targetTimeout = d
	}
}

// WithCaptureTimeout bounds the capture and storage of a failure screenshot.
func WithCaptureTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.captureTimeout = d
	}
}

// WithCloseTimeout bounds closing a session. A session that does not close in
// time is abandoned and the run moves on.
func WithCloseTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.closeTimeout = d
	}
}

// WithParallelism runs up to n targets at once. Each target still gets its
// own Session, and the report keeps the target order. The default, 1, runs
// targets strictly one after another.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		r.parallelism = n
	}
}

// WithClock sets the clock used for artifact names and durations.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner returns a Runner that launches sessions through p.
func NewRunner(p Provider, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider:       p,
		captureTimeout: DefaultCaptureTimeout,
		closeTimeout:   DefaultCloseTimeout,
		parallelism:    1,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches a session for each target in order, runs cases against it and
// records exactly one outcome per target. Failures of one target never stop
// the others.
func (r *Runner) Run(ctx context.Context, targets []BrowserTarget, cases ...TestCase) *Report {
	report := &Report{Entries: make([]Entry, len(targets))}
	names := &artifactNames{used: make(map[string]bool)}
	if r.parallelism <= 1 {
		for i, t := range targets {
			report.Entries[i] = Entry{Target: t, Outcome: r.runTarget(ctx, t, cases, names)}
		}
		return report
	}

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			report.Entries[i] = Entry{Target: t, Outcome: r.runTarget(ctx, t, cases, names)}
			return nil
		})
	}
	g.Wait()
	return report
}

func (r *Runner) runTarget(ctx context.Context, t BrowserTarget, cases []TestCase, names *artifactNames) (out Outcome) {
	start := r.now()
	defer func() {
		out.Duration = r.now().Sub(start)
		if out.Status == Passed {
			glog.Infof("%s: passed in %v", t, out.Duration)
		} else {
			glog.Errorf("%s: failed (%s): %s", t, out.Kind, out.Reason)
		}
	}()

	if r.targetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.targetTimeout)
		defer cancel()
	}

	glog.Infof("%s: launching %s session", t, t.Engine)
	s, err := r.provider.Launch(ctx, t)
	if err != nil {
		var le *LaunchError
		if !errors.As(err, &le) {
			err = &LaunchError{Target: t.String(), Err: err}
		}
		if s != nil {
			r.close(ctx, t, s)
		}
		return failed("", err)
	}
	defer r.close(ctx, t, s)

	for _, c := range cases {
		glog.V(1).Infof("%s: running case %q", t, c.Name())
		if err := runCase(ctx, c, s); err != nil {
			out = failed(c.Name(), err)
			out.Artifact = r.capture(ctx, t, s, names)
			out.Console = r.console(ctx, s)
			return out
		}
	}
	return passed(0)
}

func runCase(ctx context.Context, c TestCase, s Session) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in case %q: %v", c.Name(), p)
		}
	}()
	return c.Run(ctx, s)
}

// close closes s on its own deadline, so that it still runs after the
// target's context has expired.
func (r *Runner) close(ctx context.Context, t BrowserTarget, s Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.closeTimeout)
	defer cancel()
	if err := blocking.Do(ctx, s.Close); err != nil {
		glog.Warningf("%s: closing session: %v", t, err)
	}
}

// console returns the console lines recorded by s, if it records any.
func (r *Runner) console(ctx context.Context, s Session) []string {
	cr, ok := s.(ConsoleReader)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.captureTimeout)
	defer cancel()
	return cr.ConsoleLines(ctx)
}

// capture saves a screenshot of s and returns its location, or "" if the
// capture failed. The capture runs on its own deadline so that it still works
// after the target's context has expired.
func (r *Runner) capture(ctx context.Context, t BrowserTarget, s Session, names *artifactNames) string {
	if r.sink == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.captureTimeout)
	defer cancel()

	data, err := s.Screenshot(ctx)
	if err != nil {
		glog.Warning(&CaptureError{Target: t.String(), Err: err})
		return ""
	}
	loc, err := r.sink.Save(ctx, names.reserve(t, r.now()), data)
	if err != nil {
		glog.Warning(&CaptureError{Target: t.String(), Err: err})
		return ""
	}
	glog.Infof("%s: saved screenshot to %s", t, loc)
	return loc
}

// artifactNames hands out screenshot names that are unique within one run.
// A name already taken moves the timestamp forward by a millisecond.
type artifactNames struct {
	mu   sync.Mutex
	used map[string]bool
}

func (n *artifactNames) reserve(t BrowserTarget, ts time.Time) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		name := ArtifactName(t, ts)
		if !n.used[name] {
			n.used[name] = true
			return name
		}
		ts = ts.Add(time.Millisecond)
	}
}

// ArtifactName returns the file name of a target's failure screenshot taken
// at ts: "{target}-{unix milliseconds}.png".
func ArtifactName(t BrowserTarget, ts time.Time) string {
	slug := t.Slug()
	if slug == "" {
		slug = "target"
	}
	return fmt.Sprintf("%s-%d.png", slug, ts.UnixMilli())
}
