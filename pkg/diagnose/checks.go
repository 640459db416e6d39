package diagnose

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/searchkit/searchkit/pkg/auth"
	"github.com/searchkit/searchkit/pkg/config"
	"github.com/searchkit/searchkit/pkg/errors"
	"github.com/searchkit/searchkit/pkg/search"
)

// StandardChecks builds the default check sequence for a configured
// environment. The client may be nil when the endpoint is not set; the
// dependent checks then fail with configuration guidance.
func StandardChecks(cfg *config.Config, credential auth.Credential, safe *search.SafeClient) []Check {
	return []Check{
		ConfigurationCheck(cfg),
		NetworkCheck(cfg),
		ServiceAvailabilityCheck(safe),
		AuthCheck(cfg, credential),
		IndexCheck(cfg, safe),
		QueryCheck(cfg, safe),
	}
}

// ConfigurationCheck verifies the configuration format without any I/O.
func ConfigurationCheck(cfg *config.Config) Check {
	return Check{
		Name:     "configuration",
		Severity: SeverityError,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			if cfg.Search.Endpoint == "" {
				return false, "No endpoint configured", nil,
					[]string{"Set AZURE_SEARCH_SERVICE_ENDPOINT"}
			}

			u, err := url.Parse(cfg.Search.Endpoint)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return false, fmt.Sprintf("endpoint %q is not a valid URL", cfg.Search.Endpoint), nil,
					[]string{"use the full service URL, e.g. https://myservice.search.windows.net"}
			}
			if u.Scheme != "https" {
				return false, "endpoint does not use https", map[string]string{"scheme": u.Scheme},
					[]string{"use the https service URL from the portal"}
			}

			details := map[string]string{
				"endpoint":    cfg.Search.Endpoint,
				"api_version": cfg.Search.APIVersion,
				"auth_mode":   string(cfg.Auth.Mode),
			}
			if cfg.Search.IndexName == "" {
				return false, "no default index configured", details,
					[]string{"Set AZURE_SEARCH_INDEX_NAME"}
			}
			details["index"] = cfg.Search.IndexName
			return true, "configuration looks valid", details, nil
		},
	}
}

// NetworkCheck resolves and dials the endpoint host.
func NetworkCheck(cfg *config.Config) Check {
	return Check{
		Name:     "network_connectivity",
		Severity: SeverityError,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			if cfg.Search.Endpoint == "" {
				return false, "No endpoint configured", nil,
					[]string{"Set AZURE_SEARCH_SERVICE_ENDPOINT"}
			}

			host := cfg.EndpointHost()
			if host == "" {
				return false, "endpoint has no resolvable host", nil,
					[]string{"verify the endpoint URL"}
			}

			resolveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			addrs, err := net.DefaultResolver.LookupHost(resolveCtx, host)
			if err != nil {
				return false, fmt.Sprintf("DNS resolution failed for %s", host),
					map[string]string{"host": host, "error": err.Error()},
					[]string{"check the service name in the endpoint URL", "check your DNS configuration"}
			}

			port := "443"
			if u, err := url.Parse(cfg.Search.Endpoint); err == nil && u.Port() != "" {
				port = u.Port()
			}

			start := time.Now()
			conn, err := (&net.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, "tcp", net.JoinHostPort(host, port))
			if err != nil {
				return false, fmt.Sprintf("cannot connect to %s:%s", host, port),
					map[string]string{"host": host, "port": port, "error": err.Error()},
					[]string{"check firewall and proxy settings", "verify the service is running"}
			}
			conn.Close()

			return true, fmt.Sprintf("resolved and connected to %s", host), map[string]string{
				"host":         host,
				"addresses":    fmt.Sprintf("%v", addrs),
				"dial_latency": time.Since(start).Round(time.Millisecond).String(),
			}, nil
		},
	}
}

// ServiceAvailabilityCheck calls the service stats endpoint.
func ServiceAvailabilityCheck(safe *search.SafeClient) Check {
	return Check{
		Name:     "service_availability",
		Severity: SeverityError,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			if safe == nil {
				return false, "No endpoint configured", nil,
					[]string{"Set AZURE_SEARCH_SERVICE_ENDPOINT"}
			}

			stats, err := safe.Client().ServiceStats(ctx)
			if err != nil {
				c := errors.Classify(err)
				return false, fmt.Sprintf("service stats request failed: %v", err),
					map[string]string{"kind": string(c.Kind)},
					c.Suggestions
			}

			return true, "service is reachable", map[string]string{
				"indexes":   strconv.FormatInt(stats.IndexCount, 10),
				"documents": strconv.FormatInt(stats.DocumentCount, 10),
			}, nil
		},
	}
}

// AuthCheck verifies the configured credential can produce usable
// authentication material. Token expiry is inspected without signature
// verification; this is a hint for the operator, not an auth decision.
func AuthCheck(cfg *config.Config, credential auth.Credential) Check {
	return Check{
		Name:     "authentication",
		Severity: SeverityError,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			if credential == nil {
				return false, "no credential configured", nil,
					[]string{"Set AZURE_SEARCH_API_KEY or choose another AZURE_SEARCH_AUTH_MODE"}
			}

			details := map[string]string{"mode": credential.Describe()}

			tokenCred, ok := credential.(*auth.TokenCredential)
			if !ok {
				if cfg.Auth.APIKey == "" {
					return false, "api key is empty", details,
						[]string{"Set AZURE_SEARCH_API_KEY", "copy an admin or query key from the portal"}
				}
				details["key_length"] = strconv.Itoa(len(cfg.Auth.APIKey))
				return true, "api key is configured", details, nil
			}

			token, err := tokenCred.Token()
			if err != nil {
				suggestions := []string{"verify credentials", "check permissions"}
				if cfg.Auth.Mode == config.AuthModeCLI {
					suggestions = []string{"run az login", "verify the CLI account has access to the service"}
				}
				return false, fmt.Sprintf("failed to obtain access token: %v", err), details, suggestions
			}

			expiry, err := auth.TokenExpiry(token.AccessToken)
			if err == nil {
				details["expires_at"] = expiry.UTC().Format(time.RFC3339)
				if remaining := time.Until(expiry); remaining < 5*time.Minute {
					return false, fmt.Sprintf("access token expires in %s", remaining.Round(time.Second)), details,
						[]string{"refresh the credential", "run az login again"}
				}
			}
			return true, "access token obtained", details, nil
		},
	}
}

// IndexCheck verifies the default index exists.
func IndexCheck(cfg *config.Config, safe *search.SafeClient) Check {
	return Check{
		Name:     "index_exists",
		Severity: SeverityWarning,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			if safe == nil {
				return false, "No endpoint configured", nil,
					[]string{"Set AZURE_SEARCH_SERVICE_ENDPOINT"}
			}
			if cfg.Search.IndexName == "" {
				return false, "no default index configured", nil,
					[]string{"Set AZURE_SEARCH_INDEX_NAME"}
			}

			index, err := safe.Client().GetIndex(ctx, cfg.Search.IndexName)
			if err != nil {
				c := errors.Classify(err)
				suggestions := c.Suggestions
				if errors.IsKind(err, errors.KindNotFound) {
					suggestions = []string{
						fmt.Sprintf("create the index %q first", cfg.Search.IndexName),
						"list available indexes with searchctl diagnose",
					}
				}
				return false, fmt.Sprintf("cannot fetch index %q: %v", cfg.Search.IndexName, err),
					map[string]string{"kind": string(c.Kind)},
					suggestions
			}

			return true, fmt.Sprintf("index %q exists", index.Name), map[string]string{
				"fields": strconv.Itoa(len(index.Fields)),
			}, nil
		},
	}
}

// QueryCheck runs a minimal round-trip query through the full
// resilient pipeline.
func QueryCheck(cfg *config.Config, safe *search.SafeClient) Check {
	return Check{
		Name:     "query_roundtrip",
		Severity: SeverityWarning,
		Run: func(ctx context.Context) (bool, string, map[string]string, []string) {
			if safe == nil || cfg.Search.IndexName == "" {
				return false, "skipped: endpoint or index not configured", nil,
					[]string{"Set AZURE_SEARCH_SERVICE_ENDPOINT", "Set AZURE_SEARCH_INDEX_NAME"}
			}

			outcome := safe.Search(ctx, cfg.Search.IndexName, "*", search.SearchOptions{
				Top:          1,
				IncludeCount: true,
			})
			if outcome.Failure != nil {
				return false, fmt.Sprintf("query failed: %s", outcome.Failure.Message),
					map[string]string{
						"kind":     string(outcome.Failure.Classification.Kind),
						"attempts": strconv.Itoa(len(outcome.Failure.Attempts)),
					},
					outcome.Failure.Classification.Suggestions
			}

			return true, "query round-trip succeeded", map[string]string{
				"count":    strconv.FormatInt(outcome.Result.Count, 10),
				"attempts": strconv.Itoa(len(outcome.Attempts)),
			}, nil
		},
	}
}
