// Package uploader pushes documents from a source into an index in
// parallel batches. Batches that still fail after retries are recorded
// in the failed-batch store when one is configured, so nothing is
// silently lost.
package uploader

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/searchkit/searchkit/internal/queue"
	"github.com/searchkit/searchkit/internal/source"
	"github.com/searchkit/searchkit/pkg/logging"
	"github.com/searchkit/searchkit/pkg/search"
)

// Indexer is the slice of the resilient client the uploader needs.
type Indexer interface {
	IndexDocuments(ctx context.Context, index string, action search.IndexAction, docs []search.Document) search.UploadOutcome
}

// DeadLetter receives batches that failed after all retries.
type DeadLetter interface {
	Push(ctx context.Context, batch *queue.FailedBatch) error
}

// BatchRecorder observes batch outcomes for metrics.
type BatchRecorder interface {
	RecordBatch(index string, succeeded bool, documents int)
}

// Summary aggregates one upload run.
type Summary struct {
	Batches       int      `json:"batches"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Documents     int      `json:"documents"`
	DocumentsSent int      `json:"documents_sent"`
	Errors        []string `json:"errors,omitempty"`
}

// Uploader splits a document stream into batches and indexes them with
// a fixed worker pool.
type Uploader struct {
	indexer    Indexer
	deadLetter DeadLetter
	recorder   BatchRecorder
	logger     *logging.Logger
	batchSize  int
	workers    int
	batchSeq   int64
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithDeadLetter stores failed batches for later replay.
func WithDeadLetter(dl DeadLetter) Option {
	return func(u *Uploader) { u.deadLetter = dl }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r BatchRecorder) Option {
	return func(u *Uploader) { u.recorder = r }
}

// New creates an uploader. batchSize and workers fall back to 1000 and
// 4 when not positive.
func New(indexer Indexer, batchSize, workers int, opts ...Option) *Uploader {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if workers <= 0 {
		workers = 4
	}
	u := &Uploader{
		indexer:   indexer,
		logger:    logging.GetLogger(),
		batchSize: batchSize,
		workers:   workers,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type batchResult struct {
	documents int
	failure   *search.Failure
	partial   int // documents rejected inside an otherwise accepted batch
}

// Run streams the source to exhaustion. The returned summary is
// complete even when some batches failed; the error is non-nil only
// when reading the source itself failed or the context was cancelled.
func (u *Uploader) Run(ctx context.Context, src source.Source, index string, action search.IndexAction) (*Summary, error) {
	batches := make(chan []search.Document)
	results := make(chan batchResult)

	var wg sync.WaitGroup
	for i := 0; i < u.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				results <- u.uploadBatch(ctx, index, action, batch)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var readErr error
	go func() {
		defer close(batches)
		for {
			batch, err := src.Next(ctx, u.batchSize)
			if len(batch) > 0 {
				select {
				case batches <- batch:
				case <-ctx.Done():
					readErr = ctx.Err()
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				readErr = err
				return
			}
		}
	}()

	summary := &Summary{}
	for result := range results {
		summary.Batches++
		summary.Documents += result.documents
		if result.failure != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, result.failure.Message)
			continue
		}
		summary.Succeeded++
		summary.DocumentsSent += result.documents - result.partial
		if result.partial > 0 {
			summary.Errors = append(summary.Errors, "some documents in an accepted batch were rejected")
		}
	}

	return summary, readErr
}

func (u *Uploader) uploadBatch(ctx context.Context, index string, action search.IndexAction, docs []search.Document) batchResult {
	batch := int(atomic.AddInt64(&u.batchSeq, 1))
	outcome := u.indexer.IndexDocuments(ctx, index, action, docs)
	result := batchResult{documents: len(docs)}

	if outcome.Failure != nil {
		result.failure = outcome.Failure
		u.logger.LogUploadEvent(ctx, "batch_failed", batch, len(docs), logrus.Fields{
			"index": index,
			"kind":  string(outcome.Failure.Classification.Kind),
			"error": outcome.Failure.Message,
		})
		if u.recorder != nil {
			u.recorder.RecordBatch(index, false, len(docs))
		}
		if u.deadLetter != nil {
			failed := &queue.FailedBatch{
				Index:     index,
				Action:    action,
				Documents: docs,
				Error:     outcome.Failure.Message,
				Kind:      string(outcome.Failure.Classification.Kind),
				Attempts:  len(outcome.Failure.Attempts),
			}
			if err := u.deadLetter.Push(ctx, failed); err != nil {
				u.logger.Error("failed to store dead-letter batch", "error", err)
			}
		}
		return result
	}

	for _, r := range outcome.Results {
		if !r.Status {
			result.partial++
		}
	}
	u.logger.LogUploadEvent(ctx, "batch_succeeded", batch, len(docs), logrus.Fields{
		"index":    index,
		"rejected": result.partial,
	})
	if u.recorder != nil {
		u.recorder.RecordBatch(index, true, len(docs))
	}
	return result
}
