package sink

import (
	"context"
	"errors"
	"sync"

	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/model"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("sink pipeline closed")

// Observer is notified about every record delivered or lost.
type Observer interface {
	RecordEmitted()
	SinkFailed()
}

// Pipeline fans records out to several sinks from a fixed pool of workers.
// A failing sink is logged and does not stop the others.
type Pipeline struct {
	sinks    []Sink
	jobs     chan model.ProductRecord
	log      logger.Logger
	observer Observer

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewPipeline starts workers goroutines writing to sinks. observer may be nil.
func NewPipeline(workers int, log logger.Logger, observer Observer, sinks ...Sink) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	p := &Pipeline{
		sinks:    sinks,
		jobs:     make(chan model.ProductRecord, workers),
		log:      log,
		observer: observer,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for rec := range p.jobs {
				p.process(rec)
			}
		}()
	}
	return p
}

func (p *Pipeline) process(rec model.ProductRecord) {
	for _, s := range p.sinks {
		if err := s.Write(context.Background(), rec); err != nil {
			p.log.Error("Failed to store record",
				logger.URL(rec.SourceURL),
				logger.Error(err),
			)
			if p.observer != nil {
				p.observer.SinkFailed()
			}
		}
	}
	if p.observer != nil {
		p.observer.RecordEmitted()
	}
}

// Write queues rec, blocking while every worker is busy.
func (p *Pipeline) Write(ctx context.Context, rec model.ProductRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, then closes every sink.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()

	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
