package download

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/go-github/v27/github"
)

// LatestGithubRelease returns a File for the first asset of the latest
// release of owner/repo whose name matches assetName.
func LatestGithubRelease(ctx context.Context, client *github.Client, owner, repo, assetName string, file File) (File, error) {
	rel, _, err := client.Repositories.GetLatestRelease(ctx, owner, repo)
	if err != nil {
		return File{}, err
	}
	assetNameRE, err := regexp.Compile(assetName)
	if err != nil {
		return File{}, fmt.Errorf("invalid asset name regular expression %q: %w", assetName, err)
	}
	for _, a := range rel.Assets {
		if !assetNameRE.MatchString(a.GetName()) {
			continue
		}
		u := a.GetBrowserDownloadURL()
		if u == "" {
			return File{}, fmt.Errorf("%s does not have a download URL", a.GetName())
		}
		file.URL = u
		file.Hash, file.HashType = "", ""
		return file, nil
	}
	return File{}, fmt.Errorf("release for %s not found at https://github.com/%s/%s/releases", assetName, owner, repo)
}

// LatestGeckodriver returns the linux64 GeckoDriver of the latest release.
func LatestGeckodriver(ctx context.Context, client *github.Client) (File, error) {
	return LatestGithubRelease(ctx, client, "mozilla", "geckodriver", `geckodriver-.*linux64\.tar\.gz$`, GeckodriverFile)
}

// Chromium snapshot bucket layout.
const (
	SnapshotBucket = "chromium-browser-snapshots"
	snapshotPrefix = "Linux_x64"
	lastChangeFile = "Linux_x64/LAST_CHANGE"
	driverArchive  = "chromedriver_linux64.zip"
)

// LatestChromeDriver returns the ChromeDriver of the newest Chromium
// snapshot. The snapshot number is read from the bucket's LAST_CHANGE object
// and the archive is verified against its MD5 checksum.
func LatestChromeDriver(ctx context.Context, client *storage.Client, hc *http.Client) (File, error) {
	gcsPath := fmt.Sprintf("gs://%s/", SnapshotBucket)
	bkt := client.Bucket(SnapshotBucket)

	lc, err := bkt.Object(lastChangeFile).Attrs(ctx)
	if err != nil {
		return File{}, fmt.Errorf("cannot get %s%s attrs: %w", gcsPath, lastChangeFile, err)
	}
	build, err := readSmall(ctx, hc, lc.MediaLink)
	if err != nil {
		return File{}, fmt.Errorf("cannot read from %s%s file: %w", gcsPath, lastChangeFile, err)
	}

	object := path.Join(snapshotPrefix, strings.TrimSpace(build), driverArchive)
	attrs, err := bkt.Object(object).Attrs(ctx)
	if err != nil {
		return File{}, fmt.Errorf("cannot get the chromedriver package %s%s attrs: %w", gcsPath, object, err)
	}
	return File{
		URL:      attrs.MediaLink,
		Name:     driverArchive,
		Hash:     hex.EncodeToString(attrs.MD5),
		HashType: "md5",
		Binary:   "chromedriver_linux64/chromedriver",
	}, nil
}

func readSmall(ctx context.Context, hc *http.Client, u string) (string, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	return string(b), err
}
