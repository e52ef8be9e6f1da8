package download

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var errNotInArchive = errors.New("not found in archive")

// extract copies the member named name out of the zip or tar.gz archive at
// src into the executable file dst.
func extract(src, name, dst string) error {
	switch {
	case strings.HasSuffix(src, ".zip"):
		return extractZip(src, name, dst)
	case strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"):
		return extractTarGz(src, name, dst)
	}
	return fmt.Errorf("unsupported archive %q", src)
}

func extractZip(src, name, dst string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		if path.Clean(f.Name) != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeExecutable(dst, rc)
	}
	return fmt.Errorf("%s: %w", name, errNotInArchive)
}

func extractTarGz(src, name, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("%s: %w", name, errNotInArchive)
		}
		if err != nil {
			return err
		}
		if h.Typeflag == tar.TypeReg && path.Clean(h.Name) == name {
			return writeExecutable(dst, tr)
		}
	}
}

func writeExecutable(dst string, r io.Reader) (err error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(f, r)
	return err
}
