package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
)

func TestDirSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	data := []byte("\x89PNG fake")

	got, err := Dir(dir).Save(context.Background(), "chrome-1709294400000.png", data)
	if err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	if want := filepath.Join(dir, "chrome-1709294400000.png"); got != want {
		t.Errorf("Save() = %q, want %q", got, want)
	}
	b, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) returned error: %v", got, err)
	}
	if !bytes.Equal(b, data) {
		t.Errorf("file contents = %q, want %q", b, data)
	}
}

func TestDirSaveRejectsPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", "../escape.png", "sub/dir.png"} {
		if _, err := Dir(dir).Save(context.Background(), name, nil); err == nil {
			t.Errorf("Save(%q) returned nil error, want an error", name)
		}
	}
}

func TestDirSaveUnwritable(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// A regular file where the directory should be.
	if _, err := Dir(f).Save(context.Background(), "x.png", []byte("x")); err == nil {
		t.Errorf("Save() into a file path returned nil error")
	}
}

type fakeGCS struct {
	mu     sync.Mutex
	bodies []string
	paths  []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(b))
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"bucket":"ui-artifacts","name":"runs/42/chrome-1.png","size":"9"}`)
}

func TestGCSSave(t *testing.T) {
	fake := &fakeGCS{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGCS(ctx, "ui-artifacts", "runs/42",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewGCS() returned error: %v", err)
	}
	defer g.Close()

	got, err := g.Save(ctx, "chrome-1.png", []byte("PNG bytes"))
	if err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	if want := "gs://ui-artifacts/runs/42/chrome-1.png"; got != want {
		t.Errorf("Save() = %q, want %q", got, want)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.bodies) == 0 {
		t.Fatalf("no upload request reached the server")
	}
	if !strings.Contains(fake.paths[0], "/b/ui-artifacts/o") {
		t.Errorf("upload path = %q, want it to name the bucket", fake.paths[0])
	}
	body := fake.bodies[0]
	for _, want := range []string{"runs/42/chrome-1.png", "image/png", "PNG bytes"} {
		if !strings.Contains(body, want) {
			t.Errorf("upload body does not contain %q:\n%s", want, body)
		}
	}
}

func TestNewGCSNeedsBucket(t *testing.T) {
	if _, err := NewGCS(context.Background(), "", "x", option.WithoutAuthentication()); err == nil {
		t.Errorf("NewGCS(\"\") returned nil error")
	}
}
