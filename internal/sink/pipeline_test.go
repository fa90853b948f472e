package sink_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/model"
	"catalogcrawler/internal/sink"
)

type memorySink struct {
	mu      sync.Mutex
	records []model.ProductRecord
	fail    bool
	closed  bool
}

func (m *memorySink) Write(_ context.Context, rec model.ProductRecord) error {
	if m.fail {
		return errors.New("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	if m.fail {
		return errors.New("close boom")
	}
	return nil
}

type countingObserver struct {
	emitted atomic.Int64
	failed  atomic.Int64
}

func (c *countingObserver) RecordEmitted() { c.emitted.Add(1) }
func (c *countingObserver) SinkFailed()    { c.failed.Add(1) }

func TestPipeline_FansOut(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	obs := &countingObserver{}
	p := sink.NewPipeline(3, logger.NewNop(), obs, a, b)

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Write(context.Background(), record("https://shop.test/p")))
	}
	require.NoError(t, p.Close())

	assert.Len(t, a.records, 10)
	assert.Len(t, b.records, 10)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Equal(t, int64(10), obs.emitted.Load())
	assert.Zero(t, obs.failed.Load())
}

func TestPipeline_FailingSinkDoesNotBlockOthers(t *testing.T) {
	good, bad := &memorySink{}, &memorySink{fail: true}
	obs := &countingObserver{}
	p := sink.NewPipeline(1, logger.NewNop(), obs, bad, good)

	require.NoError(t, p.Write(context.Background(), record("https://shop.test/p/1")))
	err := p.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "close boom")
	assert.Len(t, good.records, 1)
	assert.Equal(t, int64(1), obs.failed.Load())
}

func TestPipeline_WriteAfterClose(t *testing.T) {
	p := sink.NewPipeline(1, logger.NewNop(), nil, &memorySink{})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err := p.Write(context.Background(), record("https://shop.test/p"))
	assert.ErrorIs(t, err, sink.ErrClosed)
}
