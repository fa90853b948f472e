package sink_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogcrawler/internal/model"
	"catalogcrawler/internal/sink"
)

func record(url string) model.ProductRecord {
	price := 99.5
	return model.ProductRecord{
		CapturedAt:     1700000000,
		SourceURL:      url,
		Title:          "Зубная щётка",
		BreadcrumbPath: []string{"Главная", "Каталог"},
		Pricing:        model.Pricing{Current: &price, Original: &price},
		Media:          model.Media{GalleryImages: []string{}, ZoomImages: []string{}},
		Attributes:     map[string]string{model.DescriptionKey: ""},
	}
}

func TestJSONFeed_WritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	feed := sink.NewJSONFeed(path)

	require.NoError(t, feed.Write(context.Background(), record("https://shop.test/p/1")))
	require.NoError(t, feed.Write(context.Background(), record("https://shop.test/p/2")))
	require.NoError(t, feed.Close())
	assert.Equal(t, 2, feed.Count())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "[\n    {\n        \"captured_at\""))
	assert.Contains(t, string(raw), "Зубная щётка")

	var got []model.ProductRecord
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "https://shop.test/p/2", got[1].SourceURL)
	assert.Nil(t, got[0].Pricing.DiscountLabel)
}

func TestJSONFeed_NoRecordsNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	feed := sink.NewJSONFeed(path)

	require.NoError(t, feed.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestJSONFeed_OverwritesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte("stale content that is longer than the feed"), 0o600))

	require.NoError(t, sink.WriteFeed(path, []model.ProductRecord{record("https://shop.test/p/1")}))

	var got []model.ProductRecord
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Len(t, got, 1)
}

func TestJSONFeed_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	feed := sink.NewJSONFeed(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, feed.Write(context.Background(), record("https://shop.test/p")))
		}()
	}
	wg.Wait()
	require.NoError(t, feed.Close())

	var got []model.ProductRecord
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Len(t, got, 20)
}
