// searchctl is the operator CLI: query an index, bulk-upload documents,
// replay failed batches, diagnose a search environment, or serve the
// diagnostics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/searchkit/searchkit/internal/queue"
	"github.com/searchkit/searchkit/internal/server"
	"github.com/searchkit/searchkit/internal/source"
	"github.com/searchkit/searchkit/internal/uploader"
	"github.com/searchkit/searchkit/pkg/auth"
	"github.com/searchkit/searchkit/pkg/config"
	"github.com/searchkit/searchkit/pkg/diagnose"
	"github.com/searchkit/searchkit/pkg/logging"
	"github.com/searchkit/searchkit/pkg/metrics"
	"github.com/searchkit/searchkit/pkg/resilience"
	"github.com/searchkit/searchkit/pkg/search"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Load .env file if present (development convenience)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "searchctl",
		Version:     version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())

	command := os.Args[1]
	args := os.Args[2:]

	var exitCode int
	switch command {
	case "search":
		exitCode = runSearch(ctx, cfg, args)
	case "upload":
		exitCode = runUpload(ctx, cfg, args)
	case "replay":
		exitCode = runReplay(ctx, cfg, args)
	case "diagnose":
		exitCode = runDiagnose(ctx, cfg, args)
	case "serve":
		exitCode = runServe(ctx, cfg)
	case "version":
		fmt.Printf("searchctl %s (commit %s, built %s)\n", version, commit, date)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		exitCode = 1
	}
	os.Exit(exitCode)
}

func printUsage() {
	fmt.Print(`searchctl - resilient search service toolkit

Usage:
  searchctl <command> [flags]

Commands:
  search      Query an index
  upload      Bulk-upload documents from a file or Postgres table
  replay      Resubmit failed batches from the dead-letter store
  diagnose    Run environment diagnostics and write a JSON report
  serve       Serve diagnostics and metrics over HTTP
  version     Print version information
  help        Show this help

Configuration is read from environment variables (a .env file is
honored). The essentials:
  AZURE_SEARCH_SERVICE_ENDPOINT   https://<service>.search.windows.net
  AZURE_SEARCH_INDEX_NAME         default index
  AZURE_SEARCH_API_KEY            api key (auth mode api_key)
  AZURE_SEARCH_AUTH_MODE          api_key | client_credentials | managed_identity | cli
`)
}

// buildSafeClient wires credential, raw client and resilient caller.
func buildSafeClient(cfg *config.Config, m *metrics.Metrics) (auth.Credential, *search.SafeClient, error) {
	credential, err := auth.FromConfig(cfg.Auth)
	if err != nil {
		return nil, nil, err
	}

	client := search.NewClient(cfg.Search.Endpoint, cfg.Search.APIVersion, credential, cfg.Search.Timeout)
	caller := resilience.NewCaller(resilience.Policy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
		Multiplier: cfg.Retry.Multiplier,
		Jitter:     true,
	})
	if m != nil {
		caller = caller.WithRecorder(m)
	}
	return credential, search.NewSafeClient(client, caller), nil
}

func runSearch(ctx context.Context, cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("search", flag.ExitOnError)
	index := flags.String("index", cfg.Search.IndexName, "Index to query")
	filter := flags.String("filter", "", "OData filter expression")
	orderBy := flags.String("orderby", "", "Sort expression")
	selectFields := flags.String("select", "", "Comma-separated fields to return")
	top := flags.Int("top", 10, "Page size")
	skip := flags.Int("skip", 0, "Results to skip")
	count := flags.Bool("count", false, "Include the total match count")
	asJSON := flags.Bool("json", false, "Print the raw result as JSON")
	flags.Parse(args)

	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: searchctl search [flags] <query text>")
		return 1
	}
	text := strings.Join(flags.Args(), " ")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	_, safe, err := buildSafeClient(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build client: %v\n", err)
		return 1
	}

	opts := buildSearchOptions(*filter, *orderBy, *selectFields, *top, *skip, *count)

	outcome := safe.Search(ctx, *index, text, opts)
	if outcome.Failure != nil {
		printFailure(outcome.Failure)
		return 1
	}

	if *asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(outcome.Result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
			return 1
		}
		return 0
	}

	if outcome.Result.Count >= 0 && *count {
		fmt.Printf("%d total matches\n\n", outcome.Result.Count)
	}
	for i, hit := range outcome.Result.Hits {
		fmt.Printf("%2d. (score %.2f)\n", *skip+i+1, hit.Score)
		for field, value := range hit.Fields {
			fmt.Printf("    %s: %v\n", field, value)
		}
	}
	if len(outcome.Result.Hits) == 0 {
		fmt.Println("No results.")
	}
	return 0
}

// buildSearchOptions turns the flat CLI flags into search options;
// orderby and select are comma-separated lists.
func buildSearchOptions(filter, orderBy, selectFields string, top, skip int, count bool) search.SearchOptions {
	opts := search.SearchOptions{
		Filter:       filter,
		Top:          top,
		Skip:         skip,
		IncludeCount: count,
	}
	if orderBy != "" {
		opts.OrderBy = strings.Split(orderBy, ",")
	}
	if selectFields != "" {
		opts.Select = strings.Split(selectFields, ",")
	}
	return opts
}

func runUpload(ctx context.Context, cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("upload", flag.ExitOnError)
	file := flags.String("file", "", "JSON or JSON-lines document file")
	fromPostgres := flags.Bool("from-postgres", false, "Read documents from the configured Postgres table")
	index := flags.String("index", cfg.Search.IndexName, "Target index")
	action := flags.String("action", string(search.ActionMergeOrUpload), "Index action: upload | merge | mergeOrUpload | delete")
	batchSize := flags.Int("batch-size", cfg.Uploader.BatchSize, "Documents per batch")
	workers := flags.Int("workers", cfg.Uploader.Workers, "Parallel upload workers")
	flags.Parse(args)

	if (*file != "") == *fromPostgres {
		fmt.Fprintln(os.Stderr, "Specify exactly one of -file or -from-postgres")
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	_, safe, err := buildSafeClient(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build client: %v\n", err)
		return 1
	}

	var src source.Source
	if *fromPostgres {
		src, err = source.NewPostgresSource(ctx, cfg)
	} else {
		src, err = source.NewFileSource(*file)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open document source: %v\n", err)
		return 1
	}
	defer src.Close()

	var opts []uploader.Option
	if cfg.HasRedis() {
		store, err := queue.NewStore(ctx, cfg.Redis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to the dead-letter store: %v\n", err)
			return 1
		}
		defer store.Close()
		opts = append(opts, uploader.WithDeadLetter(store))
	}

	up := uploader.New(safe, *batchSize, *workers, opts...)
	summary, err := up.Run(ctx, src, *index, search.IndexAction(*action))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload aborted: %v\n", err)
		return 1
	}

	fmt.Printf("Uploaded %d/%d documents in %d batches (%d succeeded, %d failed)\n",
		summary.DocumentsSent, summary.Documents, summary.Batches, summary.Succeeded, summary.Failed)
	for _, msg := range summary.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
	if summary.Failed > 0 {
		if cfg.HasRedis() {
			fmt.Println("Failed batches were stored; run 'searchctl replay' after fixing the cause.")
		}
		return 1
	}
	return 0
}

func runReplay(ctx context.Context, cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("replay", flag.ExitOnError)
	max := flags.Int("max", 0, "Maximum batches to replay (0 = all)")
	list := flags.Bool("list", false, "List stored batches without replaying")
	flags.Parse(args)

	if !cfg.HasRedis() {
		fmt.Fprintln(os.Stderr, "No dead-letter store configured (set REDIS_ADDR)")
		return 1
	}

	store, err := queue.NewStore(ctx, cfg.Redis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to the dead-letter store: %v\n", err)
		return 1
	}
	defer store.Close()

	if *list {
		batches, err := store.List(ctx, 50)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list batches: %v\n", err)
			return 1
		}
		if len(batches) == 0 {
			fmt.Println("No failed batches stored.")
			return 0
		}
		for _, batch := range batches {
			fmt.Printf("%s  index=%s docs=%d attempts=%d failed_at=%s  %s\n",
				batch.ID, batch.Index, len(batch.Documents), batch.Attempts,
				batch.FailedAt.Format(time.RFC3339), batch.Error)
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}
	_, safe, err := buildSafeClient(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build client: %v\n", err)
		return 1
	}

	replayed, err := store.Replay(ctx, safe, *max)
	fmt.Printf("Replayed %d batches\n", replayed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay stopped: %v\n", err)
		return 1
	}
	return 0
}

func runDiagnose(ctx context.Context, cfg *config.Config, args []string) int {
	flags := flag.NewFlagSet("diagnose", flag.ExitOnError)
	reportPath := flags.String("report", cfg.Diagnostics.ReportPath, "Where to write the JSON report")
	noReport := flags.Bool("no-report", false, "Skip writing the JSON report")
	flags.Parse(args)

	// The endpoint may be missing or wrong; that is exactly what the
	// checks are for, so credential and client errors are reported by
	// the checks rather than aborting here.
	var credential auth.Credential
	var safe *search.SafeClient
	if cfg.Search.Endpoint != "" {
		credential, _ = auth.FromConfig(cfg.Auth)
		client := search.NewClient(cfg.Search.Endpoint, cfg.Search.APIVersion, credential, cfg.Search.Timeout)
		safe = search.NewSafeClient(client, resilience.NewCaller(resilience.Policy{
			MaxRetries: 1,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
			Multiplier: cfg.Retry.Multiplier,
			Jitter:     true,
		}))
	}

	fmt.Printf("searchctl diagnose (endpoint: %s)\n\n", orUnset(cfg.Search.Endpoint))

	runner := diagnose.NewRunner(os.Stdout, cfg.Diagnostics.MaxSuggestions)
	for _, check := range diagnose.StandardChecks(cfg, credential, safe) {
		runner.Register(check)
	}

	report := runner.Run(ctx)
	runner.RenderSummary(report)

	if !*noReport {
		if err := diagnose.WriteReport(report, *reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			return 1
		}
		fmt.Printf("Report written to %s\n", *reportPath)
	}

	return report.ExitCode()
}

func runServe(ctx context.Context, cfg *config.Config) int {
	m := metrics.NewMetrics(nil)

	var credential auth.Credential
	var safe *search.SafeClient
	if cfg.Search.Endpoint != "" {
		var err error
		credential, safe, err = buildSafeClient(cfg, m)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build client: %v\n", err)
			return 1
		}
	}

	srv := server.New(cfg, credential, safe, m)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

func printFailure(failure *search.Failure) {
	fmt.Fprintf(os.Stderr, "Error (%s): %s\n", failure.Classification.Kind, failure.Message)
	for _, suggestion := range failure.Classification.Suggestions {
		fmt.Fprintf(os.Stderr, "  - %s\n", suggestion)
	}
	if len(failure.Attempts) > 1 {
		fmt.Fprintf(os.Stderr, "  (%d attempts)\n", len(failure.Attempts))
	}
}

func orUnset(s string) string {
	if s == "" {
		return "<not set>"
	}
	return s
}
