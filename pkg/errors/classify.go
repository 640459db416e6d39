package errors

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// Classification is the retry-relevant view of a failure. It is derived
// purely from the error value and carries no state of its own.
type Classification struct {
	Kind        Kind     `json:"kind"`
	Retryable   bool     `json:"retryable"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Classify maps a caught failure to its Classification. It is a pure
// function of the input error and is safe to call repeatedly.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.StatusCode != 0 {
			c := ClassifyStatusCode(serviceErr.StatusCode)
			if len(serviceErr.Suggestions) > 0 {
				c.Suggestions = serviceErr.Suggestions
			}
			return c
		}
		suggestions := serviceErr.Suggestions
		if len(suggestions) == 0 {
			suggestions = kindSuggestions(serviceErr.Kind)
		}
		return Classification{
			Kind:        serviceErr.Kind,
			Retryable:   retryableKind(serviceErr.Kind),
			Suggestions: suggestions,
		}
	}

	if isNetworkError(err) {
		return Classification{
			Kind:        KindNetwork,
			Retryable:   true,
			Suggestions: []string{"check network connectivity", "verify the endpoint URL", "check DNS resolution"},
		}
	}

	return Classification{
		Kind:      KindUnknown,
		Retryable: false,
		Suggestions: []string{
			"check the service status in the portal",
			"retry the operation manually",
			"inspect logs for details",
		},
	}
}

// ClassifyStatusCode maps an HTTP status returned by the service to a Classification.
func ClassifyStatusCode(code int) Classification {
	switch {
	case code == 401 || code == 403:
		return Classification{
			Kind:        KindAuth,
			Retryable:   false,
			Suggestions: []string{"verify credentials", "check permissions"},
		}
	case code == 404:
		return Classification{
			Kind:        KindNotFound,
			Retryable:   false,
			Suggestions: []string{"verify the index name", "list available indexes"},
		}
	case code == 429:
		return Classification{
			Kind:        KindRateLimit,
			Retryable:   true,
			Suggestions: []string{"reduce request rate", "consider a higher service tier"},
		}
	case code == 502 || code == 503 || code == 504:
		return Classification{
			Kind:        KindServiceUnavailable,
			Retryable:   true,
			Suggestions: []string{"retry after a short delay", "check the service health in the portal"},
		}
	case code == 408:
		return Classification{
			Kind:        KindNetwork,
			Retryable:   true,
			Suggestions: []string{"retry after a short delay", "check network latency"},
		}
	case code >= 400 && code < 500:
		return Classification{
			Kind:        KindValidation,
			Retryable:   false,
			Suggestions: []string{"check query syntax", "verify field names against the index schema"},
		}
	default:
		return Classification{
			Kind:      KindUnknown,
			Retryable: false,
			Suggestions: []string{
				"check the service status in the portal",
				"retry the operation manually",
				"inspect logs for details",
			},
		}
	}
}

// kindSuggestions supplies the default remediation steps for a kind, so
// a classified failure always carries at least one suggestion.
func kindSuggestions(kind Kind) []string {
	switch kind {
	case KindAuth:
		return []string{"verify credentials", "check permissions"}
	case KindNetwork:
		return []string{"check network connectivity", "verify the endpoint URL"}
	case KindNotFound:
		return []string{"verify the index name", "list available indexes"}
	case KindRateLimit:
		return []string{"reduce request rate", "consider a higher service tier"}
	case KindServiceUnavailable:
		return []string{"retry after a short delay", "check the service health in the portal"}
	case KindValidation:
		return []string{"fix the reported parameter and retry", "check query syntax against the OData rules"}
	default:
		return []string{"check the service status in the portal", "retry the operation manually", "inspect logs for details"}
	}
}

func retryableKind(kind Kind) bool {
	switch kind {
	case KindNetwork, KindRateLimit, KindServiceUnavailable:
		return true
	default:
		return false
	}
}

// isNetworkError reports whether err originates below HTTP: DNS failures,
// refused or reset connections, and timeouts.
func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || isNetworkError(urlErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	// A per-attempt deadline counts as a network timeout; overall context
	// cancellation is handled by the caller before classification.
	return errors.Is(err, context.DeadlineExceeded)
}
