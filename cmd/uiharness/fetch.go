package main

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/google/go-github/v27/github"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/wanmail/uiharness/internal/download"
)

type fetchOptions struct {
	dir    string
	latest bool
}

func newFetchCommand() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch-drivers",
		Short: "Download ChromeDriver and GeckoDriver",
		Long: `Download the ChromeDriver and GeckoDriver binaries used by the webdriver
provider into a directory. Pinned versions are used unless --latest is given,
in which case GeckoDriver comes from its latest GitHub release and ChromeDriver
from the newest Chromium snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return fetchDrivers(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.dir, "dir", "vendor", "directory to store the drivers in")
	cmd.Flags().BoolVar(&opts.latest, "latest", false, "download the latest driver versions")
	return cmd
}

func fetchDrivers(ctx context.Context, opts *fetchOptions, out io.Writer) error {
	files := download.PinnedFiles()
	if opts.latest {
		var err error
		if files, err = latestFiles(ctx); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
	}
	d := &download.Downloader{}
	paths, err := d.DownloadAll(ctx, files, opts.dir)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

func latestFiles(ctx context.Context) ([]download.File, error) {
	gecko, err := download.LatestGeckodriver(ctx, github.NewClient(nil))
	if err != nil {
		return nil, fmt.Errorf("resolving the latest geckodriver: %w", err)
	}
	client, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("cannot create a storage client for the chromium snapshots: %w", err)
	}
	defer client.Close()
	chrome, err := download.LatestChromeDriver(ctx, client, nil)
	if err != nil {
		return nil, err
	}
	return []download.File{chrome, gecko}, nil
}
