// Package artifact stores diagnostic artifacts, such as failure screenshots,
// captured by the harness runner.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
)

// Dir writes artifacts as files into a local directory. The directory, and any
// missing parents, is created on the first Save.
type Dir string

// Save writes data to {dir}/{name} and returns the path of the file.
func (d Dir) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	dir := string(d)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact directory %q: %w", dir, err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("writing artifact %q: %w", p, err)
	}
	glog.V(2).Infof("wrote %d bytes to %s", len(data), p)
	return p, nil
}
