package uiharness_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"

	"github.com/wanmail/uiharness"
)

func mixedReport() *uiharness.Report {
	return &uiharness.Report{Entries: []uiharness.Entry{
		{Target: chrome, Outcome: uiharness.Outcome{Status: uiharness.Passed}},
		{Target: firefox, Outcome: uiharness.Outcome{
			Status: uiharness.Failed,
			Kind:   uiharness.KindLaunch,
			Reason: "launch Firefox: geckodriver not found",
		}},
		{Target: safari, Outcome: uiharness.Outcome{
			Status:   uiharness.Failed,
			Kind:     uiharness.KindAssertion,
			Case:     "login",
			Reason:   "url: expected URL containing \"/inventory.html\",\n\tgot \"https://www.saucedemo.com/\"",
			Artifact: "artifacts/safari-1709294400000.png",
		}},
	}}
}

func TestRender(t *testing.T) {
	tests := []struct {
		desc   string
		in     *uiharness.Report
		golden string
	}{
		{desc: "empty", in: &uiharness.Report{}, golden: "render_empty"},
		{desc: "mixed", in: mixedReport(), golden: "render_mixed"},
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			g.Assert(t, test.golden, []byte(uiharness.Render(test.in)))
		})
	}
}

// paint returns s wrapped in the escape sequences color emits for attrs,
// whether or not the test output is a terminal.
func paint(s string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func TestRenderColor(t *testing.T) {
	out := uiharness.Render(mixedReport(), uiharness.WithColor())
	for _, want := range []string{
		paint("PASS", color.FgGreen, color.Bold) + " Chrome\n",
		paint("FAIL", color.FgRed, color.Bold) + " Firefox: ",
		"1/3 targets passed.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render(WithColor()) = %q, want it to contain %q", out, want)
		}
	}
	if !strings.HasPrefix(out, "\x1b[32;1mPASS") {
		t.Errorf("Render(WithColor()) = %q, want it to start with bold green PASS", out)
	}
}

func TestReportCounts(t *testing.T) {
	r := mixedReport()
	if got, want := r.Total(), 3; got != want {
		t.Errorf("Total() = %d, want %d", got, want)
	}
	if got, want := r.Passed(), 1; got != want {
		t.Errorf("Passed() = %d, want %d", got, want)
	}
	if got, want := r.Failed(), 2; got != want {
		t.Errorf("Failed() = %d, want %d", got, want)
	}
	if r.OK() {
		t.Errorf("OK() = true, want false")
	}
}

func TestReportJSON(t *testing.T) {
	b, err := json.Marshal(mixedReport().Entries[1].Outcome)
	if err != nil {
		t.Fatalf("json.Marshal() returned error: %v", err)
	}
	want := `{"status":"failed","kind":"launch","reason":"launch Firefox: geckodriver not found","duration":0}`
	if got := string(b); got != want {
		t.Errorf("json.Marshal() = %s, want %s", got, want)
	}
}
