// Package usage records call-level usage for cost reporting and auditing.
//
// Recording is a message-passing handoff: the dispatcher enqueues onto a
// buffered channel and a single drainer goroutine writes to the sink. The
// dispatch path never blocks on logging; when the buffer is full the record
// is dropped and counted rather than stalling a live request.
package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Sink is the durable store call records are appended to.
type Sink interface {
	Append(ctx context.Context, rec models.CallRecord) error
}

// NopSink discards records; used when no database is configured.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(context.Context, models.CallRecord) error { return nil }

// sinkTimeout bounds a single sink write so a slow store cannot back the
// drainer up indefinitely.
const sinkTimeout = 5 * time.Second

// Logger is the asynchronous, fire-and-forget usage recorder.
type Logger struct {
	sink    Sink
	ch      chan models.CallRecord
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewLogger creates a Logger with the given buffer size and starts its
// drainer goroutine.
func NewLogger(sink Sink, buffer int) *Logger {
	if buffer <= 0 {
		buffer = 1024
	}
	l := &Logger{
		sink: sink,
		ch:   make(chan models.CallRecord, buffer),
		done: make(chan struct{}),
	}
	go l.drain()
	return l
}

// Record enqueues a call record. It never blocks and never returns an error:
// logging failures must not affect the dispatch path.
func (l *Logger) Record(rec models.CallRecord) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- rec:
	default:
		n := l.dropped.Add(1)
		log.Warnf("usage: buffer full, dropped record %s (total dropped: %d)", rec.ID, n)
	}
}

// Dropped returns the number of records discarded due to a full buffer.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops accepting records and drains the buffer, waiting until the
// drainer finishes or ctx expires.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) drain() {
	defer close(l.done)
	for rec := range l.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := l.sink.Append(ctx, rec); err != nil {
			// Swallowed by contract; operators see it in the logs.
			log.Errorf("usage: appending record %s: %v", rec.ID, err)
		}
		cancel()
	}
}
