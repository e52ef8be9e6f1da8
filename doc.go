/*
Package uiharness runs browser-driven UI checks against several browser targets
and reports which targets passed.

A Runner launches one Session per BrowserTarget through a Provider, runs the
TestCases against it, saves a screenshot when a case fails, and always closes
the Session before moving to the next target. Providers wrapping real
automation libraries live under provider/.

Example usage:

	package main

	import (
		"context"
		"fmt"

		"github.com/wanmail/uiharness"
		"github.com/wanmail/uiharness/artifact"
		"github.com/wanmail/uiharness/cases"
		"github.com/wanmail/uiharness/provider/playwright"
	)

	func main() {
		p := playwright.New(playwright.Config{})
		defer p.Close()

		targets := []uiharness.BrowserTarget{
			{Name: "Chrome", Engine: uiharness.Chromium, Headless: true},
			{Name: "Firefox", Engine: uiharness.Firefox, Headless: true},
		}

		r := uiharness.NewRunner(p, uiharness.WithArtifactSink(artifact.Dir("screenshots")))
		report := r.Run(context.Background(), targets,
			cases.Title{URL: "https://www.baidu.com", Want: "百度一下"})
		fmt.Print(uiharness.Render(report))
	}

Suites can also be described in YAML and run with the uiharness command; see
package config.
*/
package uiharness
