package uiharness

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// Probe waits for each candidate in order to become visible, giving every
// candidate its own timeout of each. The first candidate that resolves wins and
// its index is returned; later candidates are not tried. If none resolve, Probe
// returns an *ElementNotFoundError listing all candidates.
//
// Pages often render one of several equivalent DOM shapes, so the order of
// candidates is significant.
func Probe(ctx context.Context, s Session, candidates []Locator, each time.Duration) (int, error) {
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		err := s.WaitForSelector(ctx, c, Visible, each)
		if err == nil {
			glog.V(1).Infof("probe: candidate %d (%s) resolved", i, c)
			return i, nil
		}
		glog.V(1).Infof("probe: candidate %d (%s) did not resolve: %v", i, c, err)
	}
	return -1, &ElementNotFoundError{Candidates: candidates}
}
