// Package source provides document sources for the uploader: JSON
// files on disk and Postgres tables. A source yields documents in
// batches so arbitrarily large inputs stream with bounded memory.
package source

import (
	"context"
	"io"

	"github.com/searchkit/searchkit/pkg/search"
)

// Source streams documents in batches. Next returns io.EOF after the
// last batch; a returned batch may be smaller than the requested size.
type Source interface {
	Next(ctx context.Context, size int) ([]search.Document, error)
	Close() error
}

// Drain reads a source to exhaustion. Intended for tests and small inputs.
func Drain(ctx context.Context, src Source, size int) ([]search.Document, error) {
	var all []search.Document
	for {
		batch, err := src.Next(ctx, size)
		all = append(all, batch...)
		if err == io.EOF {
			return all, nil
		}
		if err != nil {
			return all, err
		}
	}
}
