package diagnose

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchkit/searchkit/pkg/config"
)

func passingCheck(name string) Check {
	return Check{
		Name:     name,
		Severity: SeverityError,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			return true, "all good", map[string]string{"probe": name}, nil
		},
	}
}

func failingCheck(name string, severity Severity, suggestions ...string) Check {
	return Check{
		Name:     name,
		Severity: severity,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			return false, "probe failed", nil, suggestions
		},
	}
}

func TestRunner_SummaryCounts(t *testing.T) {
	runner := NewRunner(&bytes.Buffer{}, 3)
	runner.Register(passingCheck("one"))
	runner.Register(failingCheck("two", SeverityError, "fix it"))
	runner.Register(failingCheck("three", SeverityWarning))
	runner.Register(passingCheck("four"))

	report := runner.Run(context.Background())

	assert.Equal(t, 4, report.Summary.Total)
	assert.Equal(t, 2, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Warnings)
	assert.Equal(t, "error", report.OverallStatus())
	assert.Equal(t, 1, report.ExitCode())
	assert.False(t, report.Timestamp.IsZero())
}

func TestRunner_AllPassedExitsZero(t *testing.T) {
	runner := NewRunner(&bytes.Buffer{}, 3)
	runner.Register(passingCheck("one"))
	runner.Register(passingCheck("two"))

	report := runner.Run(context.Background())

	assert.Equal(t, "ok", report.OverallStatus())
	assert.Equal(t, 0, report.ExitCode())
}

func TestRunner_PanickingCheckDoesNotStopTheRest(t *testing.T) {
	runner := NewRunner(&bytes.Buffer{}, 3)
	runner.Register(passingCheck("before"))
	runner.Register(Check{
		Name:     "explosive",
		Severity: SeverityError,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			panic("boom")
		},
	})
	runner.Register(passingCheck("after"))

	report := runner.Run(context.Background())

	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[0].Passed)
	assert.False(t, report.Results[1].Passed)
	assert.Contains(t, report.Results[1].Message, "boom")
	assert.True(t, report.Results[2].Passed)
	assert.Equal(t, 1, report.Summary.Failed)
}

func TestRunner_WarningFailureIsNotAnError(t *testing.T) {
	runner := NewRunner(&bytes.Buffer{}, 3)
	runner.Register(failingCheck("soft", SeverityWarning, "have a look"))

	report := runner.Run(context.Background())

	assert.Equal(t, 0, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Warnings)
	assert.Equal(t, "warning", report.OverallStatus())
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunner_RenderShowsCappedSuggestions(t *testing.T) {
	var buf bytes.Buffer
	runner := NewRunner(&buf, 2)
	runner.Register(failingCheck("network", SeverityError, "first", "second", "third"))
	runner.Register(passingCheck("config"))

	report := runner.Run(context.Background())
	runner.RenderSummary(report)

	out := buf.String()
	assert.Contains(t, out, "✗ network")
	assert.Contains(t, out, "✓ config")
	assert.Contains(t, out, "first")
	assert.Contains(t, out, "second")
	assert.NotContains(t, out, "third")
	assert.Contains(t, out, "2 checks: 1 passed, 1 failed, 0 warnings")

	// the report itself keeps the full suggestion list
	assert.Len(t, report.Results[0].FixSuggestions, 3)
}

func TestRunner_RecorderObservesEveryCheck(t *testing.T) {
	recorder := &fakeRecorder{}
	runner := NewRunner(&bytes.Buffer{}, 3).WithRecorder(recorder)
	runner.Register(passingCheck("one"))
	runner.Register(failingCheck("two", SeverityError))

	runner.Run(context.Background())

	require.Len(t, recorder.checks, 2)
	assert.Equal(t, "one", recorder.checks[0].name)
	assert.True(t, recorder.checks[0].passed)
	assert.Equal(t, "two", recorder.checks[1].name)
	assert.False(t, recorder.checks[1].passed)
}

type fakeRecorder struct {
	checks []struct {
		name   string
		passed bool
	}
}

func (f *fakeRecorder) RecordCheck(check string, passed bool, seconds float64) {
	f.checks = append(f.checks, struct {
		name   string
		passed bool
	}{check, passed})
}

func TestReport_JSONRoundTrip(t *testing.T) {
	report := &Report{
		Timestamp: time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC),
		Summary:   Summary{Total: 2, Passed: 1, Failed: 1},
		Results: []Result{
			{
				Name:     "configuration",
				Passed:   true,
				Message:  "configuration looks valid",
				Severity: SeverityInfo,
				Details:  map[string]string{"endpoint": "https://svc.search.windows.net"},
				Duration: 1500 * time.Microsecond,
			},
			{
				Name:           "network_connectivity",
				Passed:         false,
				Message:        "No endpoint configured",
				Severity:       SeverityError,
				FixSuggestions: []string{"Set AZURE_SEARCH_SERVICE_ENDPOINT"},
				Duration:       20 * time.Microsecond,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReport(report, path))

	loaded, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, report, loaded)
}

func TestReadReport_MissingFile(t *testing.T) {
	_, err := ReadReport(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestStandardChecks_EndpointUnset(t *testing.T) {
	os.Unsetenv("AZURE_SEARCH_SERVICE_ENDPOINT")
	cfg := &config.Config{}

	runner := NewRunner(&bytes.Buffer{}, 3)
	for _, check := range StandardChecks(cfg, nil, nil) {
		runner.Register(check)
	}

	report := runner.Run(context.Background())

	var network *Result
	for i := range report.Results {
		if report.Results[i].Name == "network_connectivity" {
			network = &report.Results[i]
		}
	}
	require.NotNil(t, network)
	assert.False(t, network.Passed)
	assert.Equal(t, "No endpoint configured", network.Message)
	assert.Contains(t, network.FixSuggestions, "Set AZURE_SEARCH_SERVICE_ENDPOINT")

	assert.Positive(t, report.Summary.Failed)
	assert.Equal(t, 1, report.ExitCode())
}

func TestConfigurationCheck_RejectsMalformedEndpoint(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Endpoint = "http://svc.search.windows.net"
	cfg.Search.IndexName = "hotels"

	passed, message, details, _ := ConfigurationCheck(cfg).Run(context.Background())
	assert.False(t, passed)
	assert.Contains(t, message, "https")
	assert.Equal(t, "http", details["scheme"])
}

func TestConfigurationCheck_ValidConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Endpoint = "https://svc.search.windows.net"
	cfg.Search.APIVersion = "2023-11-01"
	cfg.Search.IndexName = "hotels"

	passed, message, details, suggestions := ConfigurationCheck(cfg).Run(context.Background())
	assert.True(t, passed)
	assert.Equal(t, "configuration looks valid", message)
	assert.Equal(t, "hotels", details["index"])
	assert.Empty(t, suggestions)
}
