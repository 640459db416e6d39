package search

import (
	"context"

	"github.com/searchkit/searchkit/pkg/errors"
	"github.com/searchkit/searchkit/pkg/resilience"
	"github.com/searchkit/searchkit/pkg/validate"
)

// Failure is the terminal failure arm of a safe call: the classified
// error plus the full attempt history and the remediation steps shown
// to the user.
type Failure struct {
	Classification errors.Classification `json:"classification"`
	Message        string                `json:"message"`
	Attempts       []resilience.Attempt  `json:"attempts"`
}

// SearchOutcome is the explicit result variant of a safe search:
// exactly one of Result and Failure is set.
type SearchOutcome struct {
	Result   *SearchResult
	Failure  *Failure
	Attempts []resilience.Attempt
}

// UploadOutcome is the explicit result variant of a safe batch upload.
type UploadOutcome struct {
	Results  []IndexingResult
	Failure  *Failure
	Attempts []resilience.Attempt
}

// SafeClient wraps Client calls in the validate, call, classify, retry
// pipeline. All higher layers go through it; nothing else retries.
type SafeClient struct {
	client *Client
	caller *resilience.Caller
}

// NewSafeClient composes a client with a resilient caller.
func NewSafeClient(client *Client, caller *resilience.Caller) *SafeClient {
	return &SafeClient{
		client: client,
		caller: caller,
	}
}

// Client exposes the underlying raw client for diagnostics.
func (s *SafeClient) Client() *Client {
	return s.client
}

// Search validates the query parameters, then runs the search with
// retries on transient failures.
func (s *SafeClient) Search(ctx context.Context, index, text string, opts SearchOptions) SearchOutcome {
	outcome := s.caller.Do(ctx, resilience.Request{
		Operation: "search",
		Validate: func() validate.Outcome {
			if v := validate.SearchText(text); !v.Valid {
				return v
			}
			if v := validate.Filter(opts.Filter); !v.Valid {
				return v
			}
			return validate.Paging(opts.Top, opts.Skip)
		},
		Call: func(ctx context.Context) (interface{}, error) {
			return s.client.Search(ctx, index, text, opts)
		},
	})

	if !outcome.Success() {
		return SearchOutcome{Failure: failureFrom(outcome), Attempts: outcome.Attempts}
	}
	return SearchOutcome{Result: outcome.Value.(*SearchResult), Attempts: outcome.Attempts}
}

// IndexDocuments submits one document batch with retries.
func (s *SafeClient) IndexDocuments(ctx context.Context, index string, action IndexAction, docs []Document) UploadOutcome {
	outcome := s.caller.Do(ctx, resilience.Request{
		Operation: "index_documents",
		Validate: func() validate.Outcome {
			if len(docs) == 0 {
				return validate.Outcome{Valid: false, Message: "document batch must not be empty"}
			}
			return validate.Outcome{Valid: true}
		},
		Call: func(ctx context.Context) (interface{}, error) {
			return s.client.IndexDocuments(ctx, index, action, docs)
		},
	})

	if !outcome.Success() {
		return UploadOutcome{Failure: failureFrom(outcome), Attempts: outcome.Attempts}
	}
	return UploadOutcome{Results: outcome.Value.([]IndexingResult), Attempts: outcome.Attempts}
}

// CountDocuments returns the document count with retries.
func (s *SafeClient) CountDocuments(ctx context.Context, index string) (int64, *Failure) {
	outcome := s.caller.Do(ctx, resilience.Request{
		Operation: "count_documents",
		Call: func(ctx context.Context) (interface{}, error) {
			return s.client.CountDocuments(ctx, index)
		},
	})
	if !outcome.Success() {
		return 0, failureFrom(outcome)
	}
	return outcome.Value.(int64), nil
}

// EnsureIndex creates the index if it does not exist yet.
func (s *SafeClient) EnsureIndex(ctx context.Context, index *Index) *Failure {
	outcome := s.caller.Do(ctx, resilience.Request{
		Operation: "ensure_index",
		Call: func(ctx context.Context) (interface{}, error) {
			if _, err := s.client.GetIndex(ctx, index.Name); err == nil {
				return nil, nil
			} else if !errors.IsKind(err, errors.KindNotFound) {
				return nil, err
			}
			return nil, s.client.CreateOrUpdateIndex(ctx, index)
		},
	})
	if !outcome.Success() {
		return failureFrom(outcome)
	}
	return nil
}

func failureFrom(outcome resilience.Outcome) *Failure {
	message := ""
	if outcome.Err != nil {
		message = outcome.Err.Error()
	}
	return &Failure{
		Classification: outcome.Classification,
		Message:        message,
		Attempts:       outcome.Attempts,
	}
}
