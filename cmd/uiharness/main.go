// Command uiharness runs browser UI test suites and fetches the WebDriver
// binaries they need.
//
// Usage:
//
//	uiharness run -c suite.yaml [--report-json report.json] [--color]
//	uiharness fetch-drivers --dir vendor [--latest]
//
// The glog flags, such as -v and -logtostderr, are accepted by every command.
package main

import (
	"fmt"
	"os"

	"github.com/golang/glog"
)

func main() {
	cmd := newRootCommand(os.Stdout)
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "uiharness:", err)
	}
	glog.Flush()
	os.Exit(exitCode(err))
}
