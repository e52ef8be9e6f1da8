package download

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-github/v27/github"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"google.golang.org/api/option"
)

const driverBody = "#!/bin/sh\necho driver\n"

func zipArchive(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	if err != nil {
		t.Fatalf("zip Create(%q) returned error: %v", name, err)
	}
	if _, err := f.Write([]byte(body)); err != nil {
		t.Fatalf("zip Write returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close returned error: %v", err)
	}
	return buf.Bytes()
}

func tarGzArchive(t *testing.T, name, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	if err := tw.WriteHeader(&tar.Header{Name: "docs/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatalf("tar WriteHeader returned error: %v", err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))}); err != nil {
		t.Fatalf("tar WriteHeader returned error: %v", err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatalf("tar Write returned error: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close returned error: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip Close returned error: %v", err)
	}
	return buf.Bytes()
}

func sha256Hex(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// archiveServer serves archives by path and counts requests.
type archiveServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newArchiveServer(t *testing.T, archives map[string][]byte) *archiveServer {
	t.Helper()
	s := &archiveServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		b, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(b)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestDownload(t *testing.T) {
	zipped := zipArchive(t, "chromedriver-linux64/chromedriver", driverBody)
	tgz := tarGzArchive(t, "geckodriver", driverBody)
	srv := newArchiveServer(t, map[string][]byte{"/cd.zip": zipped, "/gd.tar.gz": tgz})

	tests := []struct {
		desc string
		file File
		want string
	}{
		{
			desc: "zip with hash",
			file: File{URL: srv.URL + "/cd.zip", Name: "chromedriver.zip", Hash: sha256Hex(zipped), Binary: "chromedriver-linux64/chromedriver"},
			want: "chromedriver",
		},
		{
			desc: "tar.gz without hash",
			file: File{URL: srv.URL + "/gd.tar.gz", Name: "geckodriver.tar.gz", Binary: "geckodriver"},
			want: "geckodriver",
		},
	}
	for _, test := range tests {
		dir := filepath.Join(t.TempDir(), "vendor")
		d := &Downloader{Client: srv.Client()}
		got, err := d.Download(context.Background(), test.file, dir)
		if err != nil {
			t.Errorf("%s: Download() returned error: %v", test.desc, err)
			continue
		}
		if want := filepath.Join(dir, test.want); got != want {
			t.Errorf("%s: Download() = %q, want %q", test.desc, got, want)
		}
		b, err := os.ReadFile(got)
		if err != nil || string(b) != driverBody {
			t.Errorf("%s: extracted binary = %q, %v, want %q", test.desc, b, err, driverBody)
		}
		if fi, err := os.Stat(got); err != nil || fi.Mode().Perm()&0100 == 0 {
			t.Errorf("%s: extracted binary is not executable: %v", test.desc, err)
		}
	}
}

func TestDownloadSkipsVerifiedArchive(t *testing.T) {
	zipped := zipArchive(t, "chromedriver", driverBody)
	srv := newArchiveServer(t, map[string][]byte{"/cd.zip": zipped})
	file := File{URL: srv.URL + "/cd.zip", Name: "chromedriver.zip", Hash: sha256Hex(zipped), Binary: "chromedriver"}
	dir := t.TempDir()
	d := &Downloader{Client: srv.Client()}

	for i := 0; i < 2; i++ {
		if _, err := d.Download(context.Background(), file, dir); err != nil {
			t.Fatalf("Download() #%d returned error: %v", i, err)
		}
	}
	if got := srv.hits.Load(); got != 1 {
		t.Errorf("server got %d requests, want 1", got)
	}
}

func TestDownloadErrors(t *testing.T) {
	zipped := zipArchive(t, "chromedriver", driverBody)
	srv := newArchiveServer(t, map[string][]byte{"/cd.zip": zipped, "/cd.rar": zipped})

	tests := []struct {
		desc string
		file File
		want string
	}{
		{
			desc: "hash mismatch",
			file: File{URL: srv.URL + "/cd.zip", Name: "chromedriver.zip", Hash: "00", Binary: "chromedriver"},
			want: `got sha256 hash`,
		},
		{
			desc: "md5 mismatch",
			file: File{URL: srv.URL + "/cd.zip", Name: "chromedriver.zip", Hash: "00", HashType: "MD5"},
			want: `got md5 hash`,
		},
		{
			desc: "not found",
			file: File{URL: srv.URL + "/missing.zip", Name: "chromedriver.zip"},
			want: "404",
		},
		{
			desc: "missing member",
			file: File{URL: srv.URL + "/cd.zip", Name: "chromedriver.zip", Binary: "chromedriver-linux64/chromedriver"},
			want: "not found in archive",
		},
		{
			desc: "unsupported archive",
			file: File{URL: srv.URL + "/cd.rar", Name: "chromedriver.rar", Binary: "chromedriver"},
			want: "unsupported archive",
		},
	}
	for _, test := range tests {
		dir := t.TempDir()
		d := &Downloader{Client: srv.Client()}
		_, err := d.Download(context.Background(), test.file, dir)
		if err == nil || !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: Download() error = %v, want it to contain %q", test.desc, err, test.want)
		}
	}

	// A failed verification does not leave the archive behind.
	dir := t.TempDir()
	d := &Downloader{Client: srv.Client()}
	d.Download(context.Background(), tests[0].file, dir)
	if _, err := os.Stat(filepath.Join(dir, "chromedriver.zip")); !os.IsNotExist(err) {
		t.Errorf("archive with a bad hash was kept: %v", err)
	}
}

func TestDownloadAll(t *testing.T) {
	zipped := zipArchive(t, "chromedriver", driverBody)
	tgz := tarGzArchive(t, "geckodriver", driverBody)
	srv := newArchiveServer(t, map[string][]byte{"/cd.zip": zipped, "/gd.tar.gz": tgz})
	dir := t.TempDir()
	files := []File{
		{URL: srv.URL + "/cd.zip", Name: "chromedriver.zip", Binary: "chromedriver"},
		{URL: srv.URL + "/gd.tar.gz", Name: "geckodriver.tar.gz", Binary: "geckodriver"},
	}
	d := &Downloader{Client: srv.Client()}
	got, err := d.DownloadAll(context.Background(), files, dir)
	if err != nil {
		t.Fatalf("DownloadAll() returned error: %v", err)
	}
	want := []string{filepath.Join(dir, "chromedriver"), filepath.Join(dir, "geckodriver")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DownloadAll() mismatch (-want +got):\n%s", diff)
	}

	files = append(files, File{URL: srv.URL + "/missing.tar.gz", Name: "missing.tar.gz"})
	if _, err := d.DownloadAll(context.Background(), files, t.TempDir()); err == nil || !strings.Contains(err.Error(), "error handling missing.tar.gz") {
		t.Errorf("DownloadAll() error = %v, want the failing file named", err)
	}
}

func TestPinnedFiles(t *testing.T) {
	for _, f := range PinnedFiles() {
		if f.URL == "" || f.Name == "" || f.Binary == "" {
			t.Errorf("pinned file %+v is incomplete", f)
		}
	}
}

func TestLatestGeckodriver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/mozilla/geckodriver/releases/latest" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"tag_name": "v0.35.0", "assets": [
			{"name": "geckodriver-v0.35.0-linux-aarch64.tar.gz", "browser_download_url": "https://example.test/aarch64"},
			{"name": "geckodriver-v0.35.0-linux64.tar.gz.asc", "browser_download_url": "https://example.test/asc"},
			{"name": "geckodriver-v0.35.0-linux64.tar.gz", "browser_download_url": "https://example.test/linux64"}
		]}`)
	}))
	defer srv.Close()

	client := github.NewClient(srv.Client())
	u, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("url.Parse(%q) returned error: %v", srv.URL, err)
	}
	client.BaseURL = u

	got, err := LatestGeckodriver(context.Background(), client)
	if err != nil {
		t.Fatalf("LatestGeckodriver() returned error: %v", err)
	}
	want := File{URL: "https://example.test/linux64", Name: "geckodriver.tar.gz", Binary: "geckodriver"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LatestGeckodriver() mismatch (-want +got):\n%s", diff)
	}

	if _, err := LatestGithubRelease(context.Background(), client, "mozilla", "geckodriver", `\.dmg$`, GeckodriverFile); err == nil {
		t.Errorf("LatestGithubRelease() for a missing asset returned nil error")
	}
}

func TestLatestChromeDriver(t *testing.T) {
	zipped := zipArchive(t, "chromedriver_linux64/chromedriver", driverBody)
	sum := md5.Sum(zipped)

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		object := func(name string, md5sum []byte) {
			json.NewEncoder(w).Encode(map[string]string{
				"bucket":    SnapshotBucket,
				"name":      name,
				"md5Hash":   base64.StdEncoding.EncodeToString(md5sum),
				"mediaLink": srv.URL + "/media/" + name,
			})
		}
		switch r.URL.Path {
		case "/storage/v1/b/chromium-browser-snapshots/o/Linux_x64/LAST_CHANGE":
			object("Linux_x64/LAST_CHANGE", nil)
		case "/storage/v1/b/chromium-browser-snapshots/o/Linux_x64/1234567/chromedriver_linux64.zip":
			object("Linux_x64/1234567/chromedriver_linux64.zip", sum[:])
		case "/media/Linux_x64/LAST_CHANGE":
			fmt.Fprint(w, "1234567\n")
		case "/media/Linux_x64/1234567/chromedriver_linux64.zip":
			w.Write(zipped)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := storage.NewClient(ctx,
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("storage.NewClient() returned error: %v", err)
	}
	defer client.Close()

	file, err := LatestChromeDriver(ctx, client, srv.Client())
	if err != nil {
		t.Fatalf("LatestChromeDriver() returned error: %v", err)
	}
	want := File{
		URL:      srv.URL + "/media/Linux_x64/1234567/chromedriver_linux64.zip",
		Name:     "chromedriver_linux64.zip",
		Hash:     hex.EncodeToString(sum[:]),
		HashType: "md5",
		Binary:   "chromedriver_linux64/chromedriver",
	}
	if diff := cmp.Diff(want, file); diff != "" {
		t.Fatalf("LatestChromeDriver() mismatch (-want +got):\n%s", diff)
	}

	d := &Downloader{Client: srv.Client()}
	bin, err := d.Download(ctx, file, t.TempDir())
	if err != nil {
		t.Fatalf("Download() returned error: %v", err)
	}
	if filepath.Base(bin) != "chromedriver" {
		t.Errorf("Download() = %q, want a chromedriver binary", bin)
	}
}
