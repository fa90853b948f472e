package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"catalogcrawler/internal/model"
)

const feedIndent = "    "

// JSONFeed streams records into a single JSON array file. The file is
// created, truncating any previous run, on the first record only, so a crawl
// that yields nothing leaves no file behind.
type JSONFeed struct {
	path string

	mu    sync.Mutex
	f     *os.File
	count int
}

func NewJSONFeed(path string) *JSONFeed {
	return &JSONFeed{path: path}
}

func (j *JSONFeed) Write(_ context.Context, rec model.ProductRecord) error {
	item, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	sep := ",\n"
	if j.f == nil {
		f, err := os.Create(j.path)
		if err != nil {
			return fmt.Errorf("create feed %s: %w", j.path, err)
		}
		j.f = f
		sep = "[\n"
	}
	if _, err := j.f.WriteString(sep); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	if _, err := j.f.Write(item); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	j.count++
	return nil
}

// Count reports how many records were written so far.
func (j *JSONFeed) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close terminates the array. It is a no-op when nothing was written.
func (j *JSONFeed) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	_, werr := j.f.WriteString("\n]\n")
	cerr := j.f.Close()
	j.f = nil
	if werr != nil {
		return fmt.Errorf("finish feed: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close feed: %w", cerr)
	}
	return nil
}

// WriteFeed writes recs as a complete feed at path in one go.
func WriteFeed(path string, recs []model.ProductRecord) error {
	feed := NewJSONFeed(path)
	for _, rec := range recs {
		if err := feed.Write(context.Background(), rec); err != nil {
			_ = feed.Close()
			return err
		}
	}
	return feed.Close()
}

// encodeRecord renders rec indented one level, UTF-8 text left unescaped.
func encodeRecord(rec model.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(feedIndent, feedIndent)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.SourceURL, err)
	}
	return append([]byte(feedIndent), bytes.TrimRight(buf.Bytes(), "\n")...), nil
}
