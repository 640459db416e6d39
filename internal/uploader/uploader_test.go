package uploader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchkit/searchkit/internal/queue"
	"github.com/searchkit/searchkit/pkg/errors"
	"github.com/searchkit/searchkit/pkg/resilience"
	"github.com/searchkit/searchkit/pkg/search"
)

// sliceSource serves a fixed document set in batches.
type sliceSource struct {
	docs   []search.Document
	offset int
}

func (s *sliceSource) Next(ctx context.Context, size int) ([]search.Document, error) {
	if s.offset >= len(s.docs) {
		return nil, io.EOF
	}
	end := s.offset + size
	if end > len(s.docs) {
		end = len(s.docs)
	}
	batch := s.docs[s.offset:end]
	s.offset = end
	if s.offset >= len(s.docs) {
		return batch, io.EOF
	}
	return batch, nil
}

func (s *sliceSource) Close() error { return nil }

func makeDocs(n int) []search.Document {
	docs := make([]search.Document, n)
	for i := range docs {
		docs[i] = search.Document{"id": fmt.Sprintf("%d", i)}
	}
	return docs
}

// fakeIndexer accepts every batch unless the batch contains a document
// whose id is listed in rejectIDs.
type fakeIndexer struct {
	mu        sync.Mutex
	batches   [][]search.Document
	rejectIDs map[string]bool
}

func (f *fakeIndexer) IndexDocuments(ctx context.Context, index string, action search.IndexAction, docs []search.Document) search.UploadOutcome {
	f.mu.Lock()
	f.batches = append(f.batches, docs)
	f.mu.Unlock()

	for _, doc := range docs {
		if f.rejectIDs[doc["id"].(string)] {
			return search.UploadOutcome{Failure: &search.Failure{
				Classification: errors.Classification{Kind: errors.KindServiceUnavailable, Retryable: true},
				Message:        "batch rejected",
				Attempts:       []resilience.Attempt{{Number: 1}, {Number: 2}},
			}}
		}
	}

	results := make([]search.IndexingResult, len(docs))
	for i, doc := range docs {
		results[i] = search.IndexingResult{Key: doc["id"].(string), Status: true}
	}
	return search.UploadOutcome{Results: results}
}

type fakeDeadLetter struct {
	mu      sync.Mutex
	batches []*queue.FailedBatch
}

func (f *fakeDeadLetter) Push(ctx context.Context, batch *queue.FailedBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	return nil
}

func TestUploader_SplitsIntoBatches(t *testing.T) {
	indexer := &fakeIndexer{}
	u := New(indexer, 10, 2)

	summary, err := u.Run(context.Background(), &sliceSource{docs: makeDocs(25)}, "hotels", search.ActionMergeOrUpload)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 25, summary.Documents)
	assert.Equal(t, 25, summary.DocumentsSent)
	assert.Len(t, indexer.batches, 3)
}

func TestUploader_FailedBatchGoesToDeadLetter(t *testing.T) {
	indexer := &fakeIndexer{rejectIDs: map[string]bool{"3": true}}
	deadLetter := &fakeDeadLetter{}
	u := New(indexer, 2, 1, WithDeadLetter(deadLetter))

	summary, err := u.Run(context.Background(), &sliceSource{docs: makeDocs(6)}, "hotels", search.ActionUpload)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Errors, "batch rejected")

	require.Len(t, deadLetter.batches, 1)
	failed := deadLetter.batches[0]
	assert.Equal(t, "hotels", failed.Index)
	assert.Equal(t, search.ActionUpload, failed.Action)
	assert.Len(t, failed.Documents, 2)
	assert.Equal(t, 2, failed.Attempts)
	assert.Equal(t, string(errors.KindServiceUnavailable), failed.Kind)
}

func TestUploader_EmptySource(t *testing.T) {
	indexer := &fakeIndexer{}
	u := New(indexer, 10, 4)

	summary, err := u.Run(context.Background(), &sliceSource{}, "hotels", search.ActionUpload)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Batches)
	assert.Empty(t, indexer.batches)
}

func TestUploader_RecorderObservesBatches(t *testing.T) {
	indexer := &fakeIndexer{rejectIDs: map[string]bool{"4": true}}
	recorder := &fakeBatchRecorder{}
	u := New(indexer, 5, 1, WithRecorder(recorder))

	_, err := u.Run(context.Background(), &sliceSource{docs: makeDocs(10)}, "hotels", search.ActionUpload)
	require.NoError(t, err)

	require.Len(t, recorder.batches, 2)
	outcomes := map[bool]int{}
	for _, b := range recorder.batches {
		outcomes[b.success]++
		assert.Equal(t, 5, b.documents)
	}
	assert.Equal(t, 1, outcomes[true])
	assert.Equal(t, 1, outcomes[false])
}

type fakeBatchRecorder struct {
	mu      sync.Mutex
	batches []struct {
		index     string
		success   bool
		documents int
	}
}

func (f *fakeBatchRecorder) RecordBatch(index string, succeeded bool, documents int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, struct {
		index     string
		success   bool
		documents int
	}{index, succeeded, documents})
}

func TestUploader_CancelledContextStopsReading(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	indexer := &fakeIndexer{}
	u := New(indexer, 1, 1)

	// The source yields one batch; the cancelled context surfaces either
	// from the send or from the per-batch call depending on timing, but
	// the run always terminates.
	summary, _ := u.Run(ctx, &sliceSource{docs: makeDocs(3)}, "hotels", search.ActionUpload)
	require.NotNil(t, summary)
}
