// Package diagnose runs a named sequence of environment checks and
// renders the outcome as console lines, a JSON report, and metrics.
// Checks are independent: one failing never stops the rest, because the
// point of a diagnostic run is the complete picture.
package diagnose

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/searchkit/searchkit/pkg/logging"
)

// Severity ranks how bad a failed check is.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Result is the immutable outcome of one check.
type Result struct {
	Name           string            `json:"name"`
	Passed         bool              `json:"passed"`
	Message        string            `json:"message"`
	Severity       Severity          `json:"severity"`
	Details        map[string]string `json:"details,omitempty"`
	FixSuggestions []string          `json:"fix_suggestions,omitempty"`
	Duration       time.Duration     `json:"execution_time"`
}

// Summary aggregates a run.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
}

// Report is the persisted form of one diagnostic run.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Results   []Result  `json:"results"`
}

// OverallStatus derives the run status by priority: error > warning > ok.
func (r *Report) OverallStatus() string {
	if r.Summary.Failed > 0 {
		return "error"
	}
	if r.Summary.Warnings > 0 {
		return "warning"
	}
	return "ok"
}

// ExitCode is 0 only when every check passed.
func (r *Report) ExitCode() int {
	if r.Summary.Failed > 0 || r.Summary.Warnings > 0 {
		return 1
	}
	return 0
}

// CheckFunc probes one aspect of the environment.
type CheckFunc func(ctx context.Context) (passed bool, message string, details map[string]string, suggestions []string)

// Check is a named diagnostic probe. Severity applies when it fails.
type Check struct {
	Name     string
	Severity Severity
	Run      CheckFunc
}

// Recorder receives check outcomes for metrics collection.
type Recorder interface {
	RecordCheck(check string, passed bool, seconds float64)
}

// Runner executes checks in registration order.
type Runner struct {
	checks         []Check
	out            io.Writer
	logger         *logging.Logger
	recorder       Recorder
	maxSuggestions int
}

// NewRunner creates a runner rendering to out. Suggestions shown per
// failed check are capped at maxSuggestions; the JSON report always
// carries all of them.
func NewRunner(out io.Writer, maxSuggestions int) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if maxSuggestions <= 0 {
		maxSuggestions = 3
	}
	return &Runner{
		out:            out,
		logger:         logging.GetLogger(),
		maxSuggestions: maxSuggestions,
	}
}

// WithRecorder registers a metrics recorder.
func (r *Runner) WithRecorder(recorder Recorder) *Runner {
	r.recorder = recorder
	return r
}

// Register appends a check to the sequence.
func (r *Runner) Register(check Check) {
	r.checks = append(r.checks, check)
}

// Run executes every registered check and returns the report. A check
// that panics is recorded as failed and the remaining checks still run.
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{
		Timestamp: time.Now().UTC(),
		Results:   make([]Result, 0, len(r.checks)),
	}

	for _, check := range r.checks {
		result := r.runOne(ctx, check)
		report.Results = append(report.Results, result)
		r.render(result)

		report.Summary.Total++
		switch {
		case result.Passed:
			report.Summary.Passed++
		case result.Severity == SeverityWarning:
			report.Summary.Warnings++
		default:
			report.Summary.Failed++
		}

		r.logger.LogDiagnosticEvent(ctx, result.Name, result.Passed, result.Duration, nil)
		if r.recorder != nil {
			r.recorder.RecordCheck(result.Name, result.Passed, result.Duration.Seconds())
		}
	}

	return report
}

func (r *Runner) runOne(ctx context.Context, check Check) (result Result) {
	start := time.Now()
	result = Result{
		Name:     check.Name,
		Severity: check.Severity,
	}

	defer func() {
		result.Duration = time.Since(start)
		if recovered := recover(); recovered != nil {
			result.Passed = false
			result.Message = fmt.Sprintf("check panicked: %v", recovered)
			result.Severity = SeverityError
			result.FixSuggestions = []string{"report this as a bug", "re-run with LOG_LEVEL=debug"}
		}
	}()

	passed, message, details, suggestions := check.Run(ctx)
	result.Passed = passed
	result.Message = message
	result.Details = details
	result.FixSuggestions = suggestions
	if passed {
		result.Severity = SeverityInfo
	}
	return result
}

// render prints one console line per check, plus capped suggestions on
// failure.
func (r *Runner) render(result Result) {
	glyph := "✓"
	if !result.Passed {
		glyph = "✗"
		if result.Severity == SeverityWarning {
			glyph = "!"
		}
	}
	fmt.Fprintf(r.out, "%s %-28s %s (%s)\n", glyph, result.Name, result.Message, result.Duration.Round(time.Millisecond))

	if !result.Passed {
		limit := len(result.FixSuggestions)
		if limit > r.maxSuggestions {
			limit = r.maxSuggestions
		}
		for _, suggestion := range result.FixSuggestions[:limit] {
			fmt.Fprintf(r.out, "    → %s\n", suggestion)
		}
	}
}

// RenderSummary prints the closing summary block.
func (r *Runner) RenderSummary(report *Report) {
	fmt.Fprintf(r.out, "\n%d checks: %d passed, %d failed, %d warnings [%s]\n",
		report.Summary.Total,
		report.Summary.Passed,
		report.Summary.Failed,
		report.Summary.Warnings,
		report.OverallStatus(),
	)
}

// WriteReport persists the report as JSON.
func WriteReport(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a previously written report.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
