package observability

import (
	"errors"
	"io"
	"iter"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StreamSource is any stream of items that can be drained and closed. The
// root package's Stream type satisfies it.
type StreamSource[T any] interface {
	Next() (T, error)
	Close() error
}

// StreamAggregator reduces the items a stream yielded into span attributes
// recorded at finalization.
type StreamAggregator[T any] func(items []T) []attribute.KeyValue

// StreamOption customizes a TracedStream.
type StreamOption[T any] func(*streamCore[T])

// WithStreamAggregator records aggregate output attributes when the stream
// finalizes. Enabling an aggregator makes the stream retain every item
// until then.
func WithStreamAggregator[T any](fn StreamAggregator[T]) StreamOption[T] {
	return func(c *streamCore[T]) { c.aggregator = fn }
}

// streamCore holds the span lifecycle state shared between the stream and
// its GC cleanup. It is deliberately separate from TracedStream:
// runtime.AddCleanup forbids the cleanup argument being the tracked object
// itself.
type streamCore[T any] struct {
	span       trace.Span
	logger     *slog.Logger
	aggregator StreamAggregator[T]
	started    time.Time
	closer     func() error

	mu        sync.Mutex
	chunks    int64
	sawFirst  bool
	items     []T
	finalized bool
}

// TracedStream wraps a stream source in a span covering the whole
// consumption: first item stamps time-to-first-token, exhaustion or error
// finalizes the span exactly once. Close is the deterministic release; an
// abandoned stream is finalized by the garbage collector as a last resort.
type TracedStream[T any] struct {
	inner   StreamSource[T]
	core    *streamCore[T]
	cleanup runtime.Cleanup
}

// NewTracedStream wraps inner in the given span. The span must already be
// started; the stream owns ending it.
func NewTracedStream[T any](inner StreamSource[T], span trace.Span, opts ...StreamOption[T]) *TracedStream[T] {
	core := &streamCore[T]{
		span:    span,
		logger:  stateLogger(),
		started: time.Now(),
		closer:  inner.Close,
	}
	for _, opt := range opts {
		opt(core)
	}
	s := &TracedStream[T]{inner: inner, core: core}
	s.cleanup = runtime.AddCleanup(s, abandonedStream[T], core)
	return s
}

// abandonedStream runs when a TracedStream is collected without Close. The
// span still finalizes (completed=false) so it is never lost, but the
// consumer should be fixed to close deterministically.
func abandonedStream[T any](core *streamCore[T]) {
	core.mu.Lock()
	finalized := core.finalized
	core.mu.Unlock()
	if !finalized {
		core.logger.Warn("stream abandoned without Close, finalizing span from cleanup")
	}
	core.finalize(false, nil)
	_ = core.closer()
}

// Next returns the next item. io.EOF signals clean exhaustion and finalizes
// the span as completed; any other error finalizes it as failed. Either way
// the error is returned unchanged.
func (s *TracedStream[T]) Next() (T, error) {
	item, err := s.inner.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.core.finalize(true, nil)
		} else {
			s.core.finalize(false, err)
		}
		return item, err
	}
	s.core.observe(item)
	return item, nil
}

// All iterates the remaining items. Errors other than io.EOF are retrievable
// via Err after the loop.
func (s *TracedStream[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer func() { _ = s.Close() }()
		for {
			item, err := s.Next()
			if err != nil {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}

// Err returns the terminal error of the underlying source, if it exposes
// one.
func (s *TracedStream[T]) Err() error {
	if src, ok := s.inner.(interface{ Err() error }); ok {
		return src.Err()
	}
	return nil
}

// Close finalizes the span (completed=false unless exhaustion already
// finalized it) and closes the underlying source. Safe to call repeatedly.
func (s *TracedStream[T]) Close() error {
	s.cleanup.Stop()
	s.core.finalize(false, nil)
	return s.inner.Close()
}

func (c *streamCore[T]) observe(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.chunks++
	if !c.sawFirst {
		c.sawFirst = true
		c.span.SetAttributes(attribute.Float64(attrInferenceTTFTMs,
			float64(time.Since(c.started))/float64(time.Millisecond)))
	}
	if c.aggregator != nil {
		c.items = append(c.items, item)
	}
}

// finalize stamps the terminal attributes and ends the span. Write-once:
// every later call is a no-op, so exhaustion, Close, and the GC cleanup can
// all race safely.
func (c *streamCore[T]) finalize(completed bool, cause error) {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return
	}
	c.finalized = true
	chunks := c.chunks
	items := c.items
	c.items = nil
	c.mu.Unlock()

	c.span.SetAttributes(
		attribute.Int64(attrInferenceChunks, chunks),
		attribute.Bool(attrInferenceStreamCompleted, completed),
	)
	if c.aggregator != nil && len(items) > 0 {
		c.runAggregator(items)
	}
	if cause != nil {
		c.span.RecordError(cause)
		c.span.SetStatus(codes.Error, cause.Error())
	} else if completed {
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()
}

// runAggregator is recover-guarded: a panicking aggregator loses its
// attributes, never the span.
func (c *streamCore[T]) runAggregator(items []T) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("stream aggregator panicked, skipping aggregate attributes",
				slog.Any("panic", r))
		}
	}()
	c.span.SetAttributes(c.aggregator(items)...)
}
