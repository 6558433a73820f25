package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Report summarizes a run.
type Report struct {
	RunID           string           `json:"run_id"`
	Browser         string           `json:"browser"`
	Headless        bool             `json:"headless"`
	BaseURL         string           `json:"base_url,omitempty"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	Duration        time.Duration    `json:"duration"`
	Total           int              `json:"total"`
	Passed          int              `json:"passed"`
	Failed          int              `json:"failed"`
	Skipped         int              `json:"skipped"`
	VaultRecoveries int64            `json:"vault_recoveries"`
	Scenarios       []ScenarioResult `json:"scenarios"`
}

// ScenarioResult is one scenario's entry in the report.
type ScenarioResult struct {
	Title          string        `json:"title"`
	Tags           []string      `json:"tags,omitempty"`
	Status         string        `json:"status"`
	Error          string        `json:"error,omitempty"`
	SessionID      string        `json:"session_id,omitempty"`
	StateAttached  bool          `json:"state_attached"`
	StartTime      time.Time     `json:"start_time"`
	Duration       time.Duration `json:"duration"`
	TeardownErrors []string      `json:"teardown_errors,omitempty"`
	Artifacts      []Artifact    `json:"artifacts,omitempty"`
}

// Success reports whether no scenario failed.
func (r *Report) Success() bool {
	return r.Failed == 0
}

// ReportWriter writes run reports.
type ReportWriter struct {
	outputDir string
}

// NewReportWriter creates a writer for outputDir.
func NewReportWriter(outputDir string) *ReportWriter {
	return &ReportWriter{outputDir: outputDir}
}

// WriteAll writes results.json and summary.md.
func (w *ReportWriter) WriteAll(report *Report) error {
	if err := os.MkdirAll(w.outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := w.WriteJSON(report); err != nil {
		return fmt.Errorf("failed to write results JSON: %w", err)
	}
	if err := w.WriteSummaryMarkdown(report); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}
	return nil
}

// WriteJSON writes the full report as results.json.
func (w *ReportWriter) WriteJSON(report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(w.outputDir, "results.json"), data, 0600)
}

// WriteSummaryMarkdown writes a human-readable summary as summary.md.
func (w *ReportWriter) WriteSummaryMarkdown(report *Report) error {
	var md strings.Builder

	md.WriteString("# uitest Run Summary\n\n")
	fmt.Fprintf(&md, "**Run:** %s\n\n", report.RunID)
	fmt.Fprintf(&md, "**Browser:** %s (headless: %v)\n\n", report.Browser, report.Headless)
	if report.BaseURL != "" {
		fmt.Fprintf(&md, "**Target:** %s\n\n", report.BaseURL)
	}
	fmt.Fprintf(&md, "**Started:** %s\n\n", report.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&md, "**Duration:** %s\n\n", report.Duration.Round(time.Millisecond))

	md.WriteString("## Totals\n\n")
	fmt.Fprintf(&md, "- **Passed:** %d\n", report.Passed)
	fmt.Fprintf(&md, "- **Failed:** %d\n", report.Failed)
	fmt.Fprintf(&md, "- **Skipped:** %d\n", report.Skipped)
	if report.VaultRecoveries > 0 {
		fmt.Fprintf(&md, "- **Cached logins discarded:** %d (unreadable credential state was deleted; those scenarios logged in fresh)\n", report.VaultRecoveries)
	}
	md.WriteString("\n")

	md.WriteString("## Scenarios\n\n")
	for _, s := range report.Scenarios {
		icon := "✅"
		switch s.Status {
		case "failed":
			icon = "❌"
		case "skipped":
			icon = "⏭️"
		}
		fmt.Fprintf(&md, "%s **%s** (%s)\n", icon, s.Title, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			fmt.Fprintf(&md, "   Error: %s\n", s.Error)
		}
		for _, a := range s.Artifacts {
			fmt.Fprintf(&md, "   %s: `%s`\n", a.Kind, a.Path)
		}
		for _, e := range s.TeardownErrors {
			fmt.Fprintf(&md, "   Teardown: %s\n", e)
		}
	}

	return os.WriteFile(filepath.Join(w.outputDir, "summary.md"), []byte(md.String()), 0600)
}
