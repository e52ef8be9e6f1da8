package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/config"
	"github.com/wanmail/uiharness/internal/proxy"
)

type runOptions struct {
	suite      string
	reportJSON string
	color      bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run -c suite.yaml",
		Short: "Run a test suite and print the report",
		Long: `Run every case of a suite against each of its browser targets, one
target at a time unless the suite sets parallel, and print one line per target
followed by the summary.

The command exits with 0 when every target passed, 1 when any target failed
and 2 when the suite could not be loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSuite(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.suite, "config", "c", "", "path of the suite file (required)")
	cmd.Flags().StringVar(&opts.reportJSON, "report-json", "", "also write the report as JSON to this file")
	cmd.Flags().BoolVar(&opts.color, "color", false, "color the PASS and FAIL markers")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSuite(ctx context.Context, opts *runOptions, out io.Writer) error {
	suite, err := config.Load(opts.suite)
	if err != nil {
		return usageError(err)
	}

	if suite.Proxy.Enabled() {
		px, err := proxy.Start(suite.Proxy.Listen, suite.Proxy.Hosts)
		if err != nil {
			return usageError(fmt.Errorf("starting proxy: %w", err))
		}
		defer px.Close()
		suite.RouteThrough(px.Addr())
	}

	sink, err := suite.NewSink(ctx)
	if err != nil {
		return usageError(err)
	}
	defer closeIfCloser("artifact sink", sink)

	p := suite.NewProvider()
	defer closeIfCloser("provider", p)

	glog.Infof("running %d cases against %d targets with the %s provider", len(suite.Cases), len(suite.Targets), suite.Provider)
	report := uiharness.NewRunner(p, suite.RunnerOptions(sink)...).Run(ctx, suite.Targets, suite.TestCases()...)
	return writeReport(report, opts, out)
}

func writeReport(report *uiharness.Report, opts *runOptions, out io.Writer) error {
	var ropts []uiharness.RenderOption
	if opts.color {
		ropts = append(ropts, uiharness.WithColor())
	}
	fmt.Fprint(out, uiharness.Render(report, ropts...))

	if opts.reportJSON != "" {
		b, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			err = os.WriteFile(opts.reportJSON, append(b, '\n'), 0644)
		}
		if err != nil {
			return &exitError{code: exitFailure, err: fmt.Errorf("writing report: %w", err)}
		}
	}
	if !report.OK() {
		return &exitError{code: exitFailure, err: fmt.Errorf("%d of %d targets failed", report.Failed(), report.Total())}
	}
	return nil
}

func closeIfCloser(what string, v interface{}) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			glog.Warningf("closing %s: %v", what, err)
		}
	}
}
