package observability

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type funcKind int

const (
	kindFunc funcKind = iota
	kindProc
	kindSeq
	kindSeq2
)

// trackConfig is resolved once at wrap time. Per-call work is limited to
// the no-op gate check and, when tracing is live, span bookkeeping.
type trackConfig struct {
	spanName      string
	tracerName    string
	typeAttr      string
	captureInput  bool
	captureOutput bool
	ignored       map[string]struct{}
	aggregator    func(items []any) any
	staticAttrs   []attribute.KeyValue
}

// TrackOption customizes a tracked function wrapper.
type TrackOption func(*trackConfig)

// WithSpanName overrides the span name. The default is the wrapped
// function's qualified name.
func WithSpanName(name string) TrackOption {
	return func(c *trackConfig) { c.spanName = name }
}

// WithTracerName sets the instrumentation scope the span is created under.
func WithTracerName(name string) TrackOption {
	return func(c *trackConfig) { c.tracerName = name }
}

// WithoutInput disables argument capture.
func WithoutInput() TrackOption {
	return func(c *trackConfig) { c.captureInput = false }
}

// WithIgnoredArguments skips the named arguments during input capture,
// e.g. for secrets or large payloads.
func WithIgnoredArguments(names ...string) TrackOption {
	return func(c *trackConfig) {
		if c.ignored == nil {
			c.ignored = make(map[string]struct{}, len(names))
		}
		for _, n := range names {
			c.ignored[n] = struct{}{}
		}
	}
}

// WithoutOutput disables result capture.
func WithoutOutput() TrackOption {
	return func(c *trackConfig) { c.captureOutput = false }
}

// WithAggregator sets how a generator's yielded items are reduced into the
// recorded output. Only meaningful for TrackSeq and TrackSeq2; other kinds
// log a warning and ignore it.
func WithAggregator(fn func(items []any) any) TrackOption {
	return func(c *trackConfig) { c.aggregator = fn }
}

// WithType sets the track.type attribute, e.g. "tool" or "agent". The
// default is "function".
func WithType(t string) TrackOption {
	return func(c *trackConfig) { c.typeAttr = t }
}

// WithAttributes adds static attributes stamped verbatim on every span.
func WithAttributes(attrs ...attribute.KeyValue) TrackOption {
	return func(c *trackConfig) { c.staticAttrs = append(c.staticAttrs, attrs...) }
}

func resolveTrackConfig(fn any, kind funcKind, opts []TrackOption) trackConfig {
	cfg := trackConfig{
		tracerName:    defaultTracerName,
		typeAttr:      "function",
		captureInput:  true,
		captureOutput: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.spanName == "" {
		cfg.spanName = functionName(fn)
	}
	if cfg.aggregator != nil && (kind == kindFunc || kind == kindProc) {
		stateLogger().Warn("aggregator is only applied to generator wrappers, ignoring",
			slog.String("span", cfg.spanName))
		cfg.aggregator = nil
	}
	return cfg
}

func functionName(fn any) string {
	if f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); f != nil {
		name := f.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return "anonymous"
}

// start opens the span and stamps type, static, and input attributes.
func (c *trackConfig) start(ctx context.Context, args any) (context.Context, trace.Span) {
	ctx, span := GetTracer(c.tracerName).Start(ctx, c.spanName)
	attrs := make([]attribute.KeyValue, 0, 1+len(c.staticAttrs))
	attrs = append(attrs, attribute.String(attrType, c.typeAttr))
	attrs = append(attrs, c.staticAttrs...)
	if c.captureInput {
		attrs = append(attrs, captureInputs(args, c.ignored, stateLogger())...)
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// finishGenerator stamps the generator lifecycle attributes. Status Ok is
// set only on normal exhaustion; early consumer stop leaves it unset and an
// error or panic path has already recorded Error.
func (c *trackConfig) finishGenerator(span trace.Span, count int64, completed bool, items []any) {
	span.SetAttributes(
		attribute.Int64(attrYieldCount, count),
		attribute.Bool(attrGeneratorCompleted, completed),
	)
	if c.captureOutput && len(items) > 0 {
		span.SetAttributes(captureOutput(runAggregator(c.aggregator, items, stateLogger()))...)
	}
	if completed {
		span.SetStatus(codes.Ok, "")
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func recordPanic(span trace.Span, r any) {
	err := fmt.Errorf("panic: %v", r)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TrackFunc wraps a plain function in a span. When observability is not
// configured the wrapper is a pass-through behind a single atomic check.
// Errors are recorded and returned unchanged; panics are recorded and
// re-raised; the result is captured as track.output on success.
func TrackFunc[A, R any](fn func(context.Context, A) (R, error), opts ...TrackOption) func(context.Context, A) (R, error) {
	cfg := resolveTrackConfig(fn, kindFunc, opts)
	return func(ctx context.Context, args A) (R, error) {
		if !IsConfigured() {
			return fn(ctx, args)
		}
		ctx, span := cfg.start(ctx, args)
		defer span.End()
		defer func() {
			if r := recover(); r != nil {
				recordPanic(span, r)
				panic(r)
			}
		}()
		out, err := fn(ctx, args)
		if err != nil {
			recordError(span, err)
			return out, err
		}
		if cfg.captureOutput {
			span.SetAttributes(captureOutput(out)...)
		}
		span.SetStatus(codes.Ok, "")
		return out, nil
	}
}

// TrackProc wraps a function that produces no result.
func TrackProc[A any](fn func(context.Context, A) error, opts ...TrackOption) func(context.Context, A) error {
	cfg := resolveTrackConfig(fn, kindProc, opts)
	return func(ctx context.Context, args A) error {
		if !IsConfigured() {
			return fn(ctx, args)
		}
		ctx, span := cfg.start(ctx, args)
		defer span.End()
		defer func() {
			if r := recover(); r != nil {
				recordPanic(span, r)
				panic(r)
			}
		}()
		if err := fn(ctx, args); err != nil {
			recordError(span, err)
			return err
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}
}

// TrackSeq wraps a generator. The span opens when iteration starts and
// closes when it ends: normal exhaustion records completed=true and Ok; the
// consumer breaking early records completed=false without an error; a panic
// records the error and re-raises. track.yield_count always reflects the
// number of items that reached the consumer.
func TrackSeq[A, T any](fn func(context.Context, A) iter.Seq[T], opts ...TrackOption) func(context.Context, A) iter.Seq[T] {
	cfg := resolveTrackConfig(fn, kindSeq, opts)
	return func(ctx context.Context, args A) iter.Seq[T] {
		if !IsConfigured() {
			return fn(ctx, args)
		}
		return func(yield func(T) bool) {
			ctx, span := cfg.start(ctx, args)
			var (
				count     int64
				completed bool
				items     []any
			)
			defer func() {
				r := recover()
				if r != nil {
					recordPanic(span, r)
				}
				cfg.finishGenerator(span, count, completed, items)
				span.End()
				if r != nil {
					panic(r)
				}
			}()
			for item := range fn(ctx, args) {
				count++
				if cfg.captureOutput {
					items = append(items, item)
				}
				if !yield(item) {
					return
				}
			}
			completed = true
		}
	}
}

// TrackSeq2 wraps a fallible generator yielding (item, error) pairs. A
// yielded error is recorded on the span and marks the run as not completed;
// items and errors still flow to the consumer unchanged.
func TrackSeq2[A, T any](fn func(context.Context, A) iter.Seq2[T, error], opts ...TrackOption) func(context.Context, A) iter.Seq2[T, error] {
	cfg := resolveTrackConfig(fn, kindSeq2, opts)
	return func(ctx context.Context, args A) iter.Seq2[T, error] {
		if !IsConfigured() {
			return fn(ctx, args)
		}
		return func(yield func(T, error) bool) {
			ctx, span := cfg.start(ctx, args)
			var (
				count     int64
				completed bool
				failed    bool
				items     []any
			)
			defer func() {
				r := recover()
				if r != nil {
					recordPanic(span, r)
				}
				cfg.finishGenerator(span, count, completed, items)
				span.End()
				if r != nil {
					panic(r)
				}
			}()
			for item, err := range fn(ctx, args) {
				if err != nil {
					failed = true
					recordError(span, err)
					if !yield(item, err) {
						return
					}
					continue
				}
				count++
				if cfg.captureOutput {
					items = append(items, item)
				}
				if !yield(item, nil) {
					return
				}
			}
			completed = !failed
		}
	}
}
