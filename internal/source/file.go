package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/searchkit/searchkit/pkg/search"
)

// FileSource reads documents from a file: either a single JSON array or
// JSON lines (one object per line). The format is detected from the
// first non-space byte.
type FileSource struct {
	file    *os.File
	scanner *bufio.Scanner
	array   []search.Document
	offset  int
	line    int
}

// NewFileSource opens path and prepares it for streaming.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document file: %w", err)
	}

	reader := bufio.NewReader(file)
	first, err := peekFirstByte(reader)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	src := &FileSource{file: file}
	if first == '[' {
		// Whole-array files are small enough to decode in one pass.
		var docs []search.Document
		if err := json.NewDecoder(reader).Decode(&docs); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to parse document array: %w", err)
		}
		src.array = docs
		return src, nil
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	src.scanner = scanner
	return src, nil
}

func peekFirstByte(reader *bufio.Reader) (byte, error) {
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return 0, err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		if err := reader.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}

// Next returns the next batch of documents.
func (s *FileSource) Next(ctx context.Context, size int) ([]search.Document, error) {
	if size <= 0 {
		size = 1000
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.array != nil {
		if s.offset >= len(s.array) {
			return nil, io.EOF
		}
		end := s.offset + size
		if end > len(s.array) {
			end = len(s.array)
		}
		batch := s.array[s.offset:end]
		s.offset = end
		if s.offset >= len(s.array) {
			return batch, io.EOF
		}
		return batch, nil
	}

	batch := make([]search.Document, 0, size)
	for len(batch) < size {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return batch, fmt.Errorf("failed to read line %d: %w", s.line+1, err)
			}
			return batch, io.EOF
		}
		s.line++

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}

		var doc search.Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return batch, fmt.Errorf("invalid JSON on line %d: %w", s.line, err)
		}
		batch = append(batch, doc)
	}
	return batch, nil
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
