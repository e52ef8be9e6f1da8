// Package download fetches the WebDriver binaries used by the webdriver
// provider: ChromeDriver and GeckoDriver.
package download

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// File describes how to download a driver archive from the Web.
type File struct {
	URL  string
	Name string
	// Hash is the hex encoded digest of the archive. Empty skips
	// verification.
	Hash string
	// HashType is "sha256" (the default), "sha1" or "md5".
	HashType string
	// Binary is the path of the executable inside the archive. It is
	// extracted next to the archive under its base name.
	Binary string
}

var (
	// ChromeDriverFile describes how to download a pinned ChromeDriver.
	ChromeDriverFile = File{
		URL:    "https://storage.googleapis.com/chrome-for-testing-public/121.0.6167.85/linux64/chromedriver-linux64.zip",
		Name:   "chromedriver.zip",
		Binary: "chromedriver-linux64/chromedriver",
	}

	// GeckodriverFile describes how to download a pinned GeckoDriver.
	GeckodriverFile = File{
		URL:    "https://github.com/mozilla/geckodriver/releases/download/v0.34.0/geckodriver-v0.34.0-linux64.tar.gz",
		Name:   "geckodriver.tar.gz",
		Binary: "geckodriver",
	}
)

// PinnedFiles returns the pinned driver versions.
func PinnedFiles() []File {
	return []File{ChromeDriverFile, GeckodriverFile}
}

// Downloader fetches files over HTTP.
type Downloader struct {
	Client *http.Client
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

// Download fetches file into dir unless an archive with the expected hash is
// already there, extracts its binary and returns the binary's path.
func (d *Downloader) Download(ctx context.Context, file File, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	archive := filepath.Join(dir, file.Name)
	if file.Hash != "" && sameHash(archive, file) {
		glog.Infof("Skipping file %q which has already been downloaded.", file.Name)
	} else {
		glog.Infof("Downloading %q from %q", file.Name, file.URL)
		if err := d.fetch(ctx, file, archive); err != nil {
			return "", err
		}
	}
	if file.Binary == "" {
		return archive, nil
	}
	bin := filepath.Join(dir, filepath.Base(file.Binary))
	glog.Infof("Extracting %q from %q", file.Binary, archive)
	if err := extract(archive, file.Binary, bin); err != nil {
		return "", fmt.Errorf("%s: %w", file.Name, err)
	}
	return bin, nil
}

// DownloadAll downloads files concurrently and returns the binary paths in
// the order of files.
func (d *Downloader) DownloadAll(ctx context.Context, files []File, dir string) ([]string, error) {
	paths := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			p, err := d.Download(ctx, file, dir)
			if err != nil {
				return fmt.Errorf("error handling %s: %w", file.Name, err)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func newHash(hashType string) hash.Hash {
	switch strings.ToLower(hashType) {
	case "md5":
		return md5.New()
	case "sha1":
		return sha1.New()
	}
	return sha256.New()
}

func (d *Downloader) fetch(ctx context.Context, file File, dst string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("%s: error downloading %q: %w", file.Name, file.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: error downloading %q: %s", file.Name, file.URL, resp.Status)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating %q: %w", dst, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing %q: %w", dst, closeErr)
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	h := newHash(file.HashType)
	if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
		return fmt.Errorf("%s: error downloading %q: %w", file.Name, file.URL, err)
	}
	if file.Hash == "" {
		return nil
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != file.Hash {
		return fmt.Errorf("%s: got %s hash %q, want %q", file.Name, hashName(file.HashType), got, file.Hash)
	}
	return nil
}

func hashName(hashType string) string {
	if hashType == "" {
		return "sha256"
	}
	return strings.ToLower(hashType)
}

func sameHash(path string, file File) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	h := newHash(file.HashType)
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	if sum := hex.EncodeToString(h.Sum(nil)); sum != file.Hash {
		glog.Warningf("File %q: got hash %q, expect hash %q", file.Name, sum, file.Hash)
		return false
	}
	return true
}
