package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/searchkit/searchkit/pkg/auth"
	"github.com/searchkit/searchkit/pkg/errors"
	"github.com/searchkit/searchkit/pkg/logging"
)

// Client is a thin REST client for the search service. It maps HTTP
// statuses onto the error taxonomy and hides all transport detail from
// callers; retry and validation live one layer up in SafeClient.
type Client struct {
	endpoint   string
	apiVersion string
	credential auth.Credential
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a search service client.
func NewClient(endpoint, apiVersion string, credential auth.Credential, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiVersion: apiVersion,
		credential: credential,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.GetLogger(),
	}
}

// Endpoint returns the configured service endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Search runs a query against an index.
func (c *Client) Search(ctx context.Context, index, text string, opts SearchOptions) (*SearchResult, error) {
	body := map[string]interface{}{
		"search": text,
	}
	if opts.Filter != "" {
		body["filter"] = opts.Filter
	}
	if len(opts.OrderBy) > 0 {
		body["orderby"] = strings.Join(opts.OrderBy, ",")
	}
	if len(opts.Select) > 0 {
		body["select"] = strings.Join(opts.Select, ",")
	}
	if len(opts.HighlightFields) > 0 {
		body["highlight"] = strings.Join(opts.HighlightFields, ",")
	}
	if len(opts.Facets) > 0 {
		body["facets"] = opts.Facets
	}
	if opts.Top > 0 {
		body["top"] = opts.Top
	}
	if opts.Skip > 0 {
		body["skip"] = opts.Skip
	}
	if opts.IncludeCount {
		body["count"] = true
	}
	if opts.SearchMode != "" {
		body["searchMode"] = opts.SearchMode
	}
	if opts.QueryType != "" {
		body["queryType"] = opts.QueryType
	}

	var raw struct {
		Count    *int64                   `json:"@odata.count"`
		Coverage *float64                 `json:"@search.coverage"`
		Facets   map[string][]FacetValue  `json:"@search.facets"`
		Value    []map[string]interface{} `json:"value"`
	}
	path := fmt.Sprintf("/indexes/%s/docs/search", url.PathEscape(index))
	if err := c.do(ctx, "search", http.MethodPost, path, nil, body, &raw); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Hits:   make([]Hit, 0, len(raw.Value)),
		Facets: raw.Facets,
	}
	if raw.Count != nil {
		result.Count = *raw.Count
	}
	if raw.Coverage != nil {
		result.Coverage = *raw.Coverage
	}
	for _, doc := range raw.Value {
		hit := Hit{Fields: make(Document, len(doc))}
		for k, v := range doc {
			switch k {
			case "@search.score":
				if score, ok := v.(float64); ok {
					hit.Score = score
				}
			case "@search.highlights":
				hit.Highlights = decodeHighlights(v)
			default:
				hit.Fields[k] = v
			}
		}
		result.Hits = append(result.Hits, hit)
	}
	if raw.Count == nil {
		result.Count = int64(len(result.Hits))
	}
	return result, nil
}

// IndexDocuments submits a batch of documents with the given action and
// returns the per-document results. A 207 response is not an error;
// callers inspect the per-document statuses.
func (c *Client) IndexDocuments(ctx context.Context, index string, action IndexAction, docs []Document) ([]IndexingResult, error) {
	value := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		entry := make(map[string]interface{}, len(doc)+1)
		entry["@search.action"] = string(action)
		for k, v := range doc {
			entry[k] = v
		}
		value = append(value, entry)
	}

	var raw struct {
		Value []IndexingResult `json:"value"`
	}
	path := fmt.Sprintf("/indexes/%s/docs/index", url.PathEscape(index))
	if err := c.do(ctx, "index_documents", http.MethodPost, path, nil, map[string]interface{}{"value": value}, &raw); err != nil {
		return nil, err
	}
	return raw.Value, nil
}

// UploadDocuments adds documents, replacing any existing versions.
func (c *Client) UploadDocuments(ctx context.Context, index string, docs []Document) ([]IndexingResult, error) {
	return c.IndexDocuments(ctx, index, ActionUpload, docs)
}

// MergeOrUploadDocuments updates existing documents field-wise and adds
// the rest.
func (c *Client) MergeOrUploadDocuments(ctx context.Context, index string, docs []Document) ([]IndexingResult, error) {
	return c.IndexDocuments(ctx, index, ActionMergeOrUpload, docs)
}

// DeleteDocuments removes documents; only the key field of each
// document is required.
func (c *Client) DeleteDocuments(ctx context.Context, index string, docs []Document) ([]IndexingResult, error) {
	return c.IndexDocuments(ctx, index, ActionDelete, docs)
}

// CreateOrUpdateIndex creates the index or updates its schema in place.
func (c *Client) CreateOrUpdateIndex(ctx context.Context, index *Index) error {
	path := fmt.Sprintf("/indexes/%s", url.PathEscape(index.Name))
	return c.do(ctx, "create_index", http.MethodPut, path, nil, index, nil)
}

// GetIndex fetches an index schema.
func (c *Client) GetIndex(ctx context.Context, name string) (*Index, error) {
	var index Index
	path := fmt.Sprintf("/indexes/%s", url.PathEscape(name))
	if err := c.do(ctx, "get_index", http.MethodGet, path, nil, nil, &index); err != nil {
		return nil, err
	}
	return &index, nil
}

// DeleteIndex removes an index and all of its documents.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	path := fmt.Sprintf("/indexes/%s", url.PathEscape(name))
	return c.do(ctx, "delete_index", http.MethodDelete, path, nil, nil, nil)
}

// ListIndexNames returns the names of all indexes on the service.
func (c *Client) ListIndexNames(ctx context.Context) ([]string, error) {
	var raw struct {
		Value []struct {
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := c.do(ctx, "list_indexes", http.MethodGet, "/indexes", url.Values{"$select": {"name"}}, nil, &raw); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw.Value))
	for _, v := range raw.Value {
		names = append(names, v.Name)
	}
	return names, nil
}

// CountDocuments returns the number of documents in an index.
func (c *Client) CountDocuments(ctx context.Context, index string) (int64, error) {
	path := fmt.Sprintf("/indexes/%s/docs/$count", url.PathEscape(index))
	body, err := c.doRaw(ctx, "count_documents", http.MethodGet, path, nil, nil)
	if err != nil {
		return 0, err
	}
	count, err := strconv.ParseInt(strings.TrimSpace(string(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))), 10, 64)
	if err != nil {
		return 0, errors.NewUnknownError("count_documents", "service returned a non-numeric count").WithCause(err)
	}
	return count, nil
}

// ServiceStats fetches service-level usage counters.
func (c *Client) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	var raw struct {
		Counters struct {
			DocumentCount struct {
				Usage int64 `json:"usage"`
			} `json:"documentCount"`
			IndexesCount struct {
				Usage int64 `json:"usage"`
			} `json:"indexesCount"`
			StorageSize struct {
				Usage int64 `json:"usage"`
			} `json:"storageSize"`
		} `json:"counters"`
	}
	if err := c.do(ctx, "service_stats", http.MethodGet, "/servicestats", nil, nil, &raw); err != nil {
		return nil, err
	}
	return &ServiceStats{
		DocumentCount: raw.Counters.DocumentCount.Usage,
		IndexCount:    raw.Counters.IndexesCount.Usage,
		StorageSize:   raw.Counters.StorageSize.Usage,
	}, nil
}

// do performs one request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	data, err := c.doRaw(ctx, op, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewUnknownError(op, "failed to decode service response").WithCause(err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, op, method, path string, query url.Values, body interface{}) ([]byte, error) {
	if c.endpoint == "" {
		return nil, errors.NewValidationError(op, "no endpoint configured").
			WithSuggestions("Set AZURE_SEARCH_SERVICE_ENDPOINT")
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	target := c.endpoint + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.NewUnknownError(op, "failed to encode request body").WithCause(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.NewValidationError(op, "failed to build request").WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.credential != nil {
		if err := c.credential.Authorize(ctx, req); err != nil {
			return nil, errors.NewAuthError(op, "failed to authorize request").WithCause(err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors keep their original type so classification
		// can recognize DNS failures and timeouts.
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(op, "failed to read response body").WithCause(err)
	}

	c.logger.Debug("Service call completed",
		"operation", op,
		"status", resp.StatusCode,
		"duration", time.Since(start).String(),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, c.statusError(op, resp.StatusCode, data)
}

// statusError maps a non-2xx response to a ServiceError.
func (c *Client) statusError(op string, status int, body []byte) error {
	message := serviceMessage(body)
	if message == "" {
		message = http.StatusText(status)
	}

	classification := errors.ClassifyStatusCode(status)
	return errors.New(classification.Kind, op, message).
		WithStatusCode(status).
		WithSuggestions(classification.Suggestions...)
}

// serviceMessage extracts the error message the service embeds in its
// error body, if any.
func serviceMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error.Message
}

func decodeHighlights(v interface{}) map[string][]string {
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	highlights := make(map[string][]string, len(raw))
	for field, fragments := range raw {
		list, ok := fragments.([]interface{})
		if !ok {
			continue
		}
		for _, fragment := range list {
			if s, ok := fragment.(string); ok {
				highlights[field] = append(highlights[field], s)
			}
		}
	}
	return highlights
}
