package search

// Document is one search index document keyed by field name.
type Document map[string]interface{}

// SearchOptions controls filtering, paging, sorting and highlighting
// of a search request.
type SearchOptions struct {
	Filter          string
	OrderBy         []string
	Select          []string
	HighlightFields []string
	Facets          []string
	Top             int
	Skip            int
	IncludeCount    bool
	SearchMode      string // "any" or "all"
	QueryType       string // "simple" or "full"
}

// Hit is one matching document with its relevance metadata.
type Hit struct {
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
	Fields     Document            `json:"fields"`
}

// FacetValue is one bucket of a facet aggregation.
type FacetValue struct {
	Value interface{} `json:"value"`
	Count int64       `json:"count"`
}

// SearchResult is the outcome of a successful search call.
type SearchResult struct {
	Count     int64                   `json:"count"`
	Hits      []Hit                   `json:"hits"`
	Facets    map[string][]FacetValue `json:"facets,omitempty"`
	Coverage  float64                 `json:"coverage,omitempty"`
}

// Field describes one index schema field.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Key         bool   `json:"key,omitempty"`
	Searchable  *bool  `json:"searchable,omitempty"`
	Filterable  *bool  `json:"filterable,omitempty"`
	Sortable    *bool  `json:"sortable,omitempty"`
	Facetable   *bool  `json:"facetable,omitempty"`
	Retrievable *bool  `json:"retrievable,omitempty"`
	Analyzer    string `json:"analyzer,omitempty"`
}

// Suggester enables autocomplete over the named source fields.
type Suggester struct {
	Name         string   `json:"name"`
	SearchMode   string   `json:"searchMode"`
	SourceFields []string `json:"sourceFields"`
}

// Index is a search index schema.
type Index struct {
	Name       string      `json:"name"`
	Fields     []Field     `json:"fields"`
	Suggesters []Suggester `json:"suggesters,omitempty"`
}

// IndexAction is the per-document action of an indexing batch.
type IndexAction string

const (
	ActionUpload        IndexAction = "upload"
	ActionMerge         IndexAction = "merge"
	ActionMergeOrUpload IndexAction = "mergeOrUpload"
	ActionDelete        IndexAction = "delete"
)

// IndexingResult is the per-document outcome of an indexing batch.
type IndexingResult struct {
	Key          string `json:"key"`
	Status       bool   `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StatusCode   int    `json:"statusCode"`
}

// ServiceStats summarizes service-level usage counters.
type ServiceStats struct {
	DocumentCount int64 `json:"document_count"`
	IndexCount    int64 `json:"index_count"`
	StorageSize   int64 `json:"storage_size"`
}

// Bool is a convenience for the optional schema field attributes.
func Bool(v bool) *bool {
	return &v
}
