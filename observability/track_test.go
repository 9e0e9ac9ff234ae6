package observability

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func recordedAttrMap(span sdktrace.ReadOnlySpan) map[string]string {
	m := make(map[string]string)
	for _, kv := range span.Attributes() {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestTrackFuncRecordsSpan(t *testing.T) {
	sr := setTestProviders(t)

	search := TrackFunc(func(ctx context.Context, args searchArgs) (string, error) {
		return "found " + args.Query, nil
	}, WithSpanName("search"))

	out, err := search(context.Background(), searchArgs{Query: "go", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, "found go", out)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "search", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	m := recordedAttrMap(span)
	assert.Equal(t, "function", m["track.type"])
	assert.Equal(t, "go", m["track.input.query"])
	assert.Equal(t, "3", m["track.input.limit"])
	assert.Equal(t, "found go", m["track.output"])
}

func TestTrackFuncNoopWhenUnconfigured(t *testing.T) {
	resetState()

	calls := 0
	fn := TrackFunc(func(ctx context.Context, _ struct{}) (int, error) {
		calls++
		return 7, nil
	})

	out, err := fn(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 1, calls, "wrapped function must run exactly once when tracing is off")
}

func TestTrackFuncError(t *testing.T) {
	sr := setTestProviders(t)
	boom := errors.New("backend down")

	fn := TrackFunc(func(ctx context.Context, _ struct{}) (string, error) {
		return "", boom
	}, WithSpanName("failing"))

	_, err := fn(context.Background(), struct{}{})
	assert.ErrorIs(t, err, boom, "the error must be returned unchanged")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	require.NotEmpty(t, span.Events())
	assert.Equal(t, "exception", span.Events()[0].Name)

	m := recordedAttrMap(span)
	assert.NotContains(t, m, "track.output", "no output capture on the error path")
}

func TestTrackFuncPanicReRaised(t *testing.T) {
	sr := setTestProviders(t)

	fn := TrackFunc(func(ctx context.Context, _ struct{}) (string, error) {
		panic("kaboom")
	}, WithSpanName("panicking"))

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = fn(context.Background(), struct{}{})
	})

	spans := sr.Ended()
	require.Len(t, spans, 1, "the span must end even when the function panics")
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTrackFuncOptions(t *testing.T) {
	sr := setTestProviders(t)

	fn := TrackFunc(func(ctx context.Context, args searchArgs) (string, error) {
		return "secret result", nil
	},
		WithSpanName("redacted"),
		WithType("tool"),
		WithoutOutput(),
		WithIgnoredArguments("query"),
		WithAttributes(attribute.String("team", "platform")),
	)

	_, err := fn(context.Background(), searchArgs{Query: "hidden", Limit: 1})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	m := recordedAttrMap(spans[0])
	assert.Equal(t, "tool", m["track.type"])
	assert.Equal(t, "platform", m["team"])
	assert.NotContains(t, m, "track.input.query")
	assert.Equal(t, "1", m["track.input.limit"])
	assert.NotContains(t, m, "track.output")
}

func TestTrackFuncWithoutInput(t *testing.T) {
	sr := setTestProviders(t)

	fn := TrackFunc(func(ctx context.Context, args searchArgs) (string, error) {
		return "ok", nil
	}, WithSpanName("no-input"), WithoutInput())

	_, err := fn(context.Background(), searchArgs{Query: "q"})
	require.NoError(t, err)

	m := recordedAttrMap(sr.Ended()[0])
	assert.NotContains(t, m, "track.input.query")
}

func TestTrackFuncNesting(t *testing.T) {
	sr := setTestProviders(t)

	inner := TrackFunc(func(ctx context.Context, _ struct{}) (string, error) {
		return "inner", nil
	}, WithSpanName("inner"))

	outer := TrackFunc(func(ctx context.Context, _ struct{}) (string, error) {
		return inner(ctx, struct{}{})
	}, WithSpanName("outer"))

	_, err := outer(context.Background(), struct{}{})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	// Inner ends first; its parent must be the outer span.
	assert.Equal(t, "inner", spans[0].Name())
	assert.Equal(t, "outer", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestTrackProc(t *testing.T) {
	sr := setTestProviders(t)

	fn := TrackProc(func(ctx context.Context, n int) error {
		if n < 0 {
			return errors.New("negative")
		}
		return nil
	}, WithSpanName("proc"))

	require.NoError(t, fn(context.Background(), 1))
	assert.Error(t, fn(context.Background(), -1))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestTrackSeqCompletion(t *testing.T) {
	sr := setTestProviders(t)

	gen := TrackSeq(func(ctx context.Context, n int) iter.Seq[string] {
		chunks := []string{"hel", "lo", "!"}
		return func(yield func(string) bool) {
			for i := 0; i < n; i++ {
				if !yield(chunks[i]) {
					return
				}
			}
		}
	}, WithSpanName("gen"))

	var got int
	for range gen(context.Background(), 3) {
		got++
	}
	assert.Equal(t, 3, got)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Ok, span.Status().Code)

	m := recordedAttrMap(span)
	assert.Equal(t, "3", m["track.yield_count"])
	assert.Equal(t, "true", m["track.generator_completed"])
	assert.Equal(t, "hello!", m["track.output"], "string chunks concatenate into the original text")
}

func TestTrackSeqEarlyStop(t *testing.T) {
	sr := setTestProviders(t)

	gen := TrackSeq(func(ctx context.Context, n int) iter.Seq[int] {
		return func(yield func(int) bool) {
			for i := 0; i < n; i++ {
				if !yield(i) {
					return
				}
			}
		}
	}, WithSpanName("gen"))

	for v := range gen(context.Background(), 10) {
		if v == 1 {
			break
		}
	}

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Unset, span.Status().Code, "early consumer stop is benign, not an error")

	m := recordedAttrMap(span)
	assert.Equal(t, "2", m["track.yield_count"])
	assert.Equal(t, "false", m["track.generator_completed"])
}

func TestTrackSeqPanic(t *testing.T) {
	sr := setTestProviders(t)

	gen := TrackSeq(func(ctx context.Context, _ struct{}) iter.Seq[int] {
		return func(yield func(int) bool) {
			yield(1)
			panic("generator blew up")
		}
	}, WithSpanName("gen"))

	assert.PanicsWithValue(t, "generator blew up", func() {
		for range gen(context.Background(), struct{}{}) {
		}
	})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)

	m := recordedAttrMap(span)
	assert.Equal(t, "1", m["track.yield_count"])
	assert.Equal(t, "false", m["track.generator_completed"])
}

func TestTrackSeqCustomAggregator(t *testing.T) {
	sr := setTestProviders(t)

	gen := TrackSeq(func(ctx context.Context, _ struct{}) iter.Seq[string] {
		return func(yield func(string) bool) {
			yield("a")
			yield("b")
		}
	}, WithSpanName("gen"), WithAggregator(func(items []any) any {
		return map[string]any{"count": len(items)}
	}))

	for range gen(context.Background(), struct{}{}) {
	}

	m := recordedAttrMap(sr.Ended()[0])
	assert.Equal(t, "2", m["track.output.count"])
}

func TestTrackSeq2ErrorPath(t *testing.T) {
	sr := setTestProviders(t)
	boom := errors.New("mid-stream failure")

	gen := TrackSeq2(func(ctx context.Context, _ struct{}) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			if !yield("first", nil) {
				return
			}
			yield("", boom)
		}
	}, WithSpanName("gen2"))

	var sawErr error
	for _, err := range gen(context.Background(), struct{}{}) {
		if err != nil {
			sawErr = err
		}
	}
	assert.ErrorIs(t, sawErr, boom, "the error must reach the consumer unchanged")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)

	m := recordedAttrMap(span)
	assert.Equal(t, "1", m["track.yield_count"])
	assert.Equal(t, "false", m["track.generator_completed"])
}

func TestTrackSeq2Completion(t *testing.T) {
	sr := setTestProviders(t)

	gen := TrackSeq2(func(ctx context.Context, _ struct{}) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			yield(1, nil)
			yield(2, nil)
		}
	}, WithSpanName("gen2"))

	for range gen(context.Background(), struct{}{}) {
	}

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	m := recordedAttrMap(spans[0])
	assert.Equal(t, "2", m["track.yield_count"])
	assert.Equal(t, "true", m["track.generator_completed"])
}

func TestDefaultSpanNameFromFunction(t *testing.T) {
	cfg := resolveTrackConfig(namedForTracing, kindFunc, nil)
	assert.Contains(t, cfg.spanName, "namedForTracing")
}

func namedForTracing(ctx context.Context, _ struct{}) (int, error) { return 0, nil }
