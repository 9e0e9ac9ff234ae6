package bud

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
)

const (
	// maxSSELineLength bounds a single SSE line. Longer lines are discarded
	// rather than buffered, so a misbehaving server cannot exhaust memory.
	maxSSELineLength = 1_000_000

	// maxSSEEvents bounds the number of events a single stream may produce.
	maxSSEEvents = 100_000

	// sseDoneSentinel is the literal data payload that marks clean
	// end-of-stream on OpenAI-compatible endpoints.
	sseDoneSentinel = "[DONE]"
)

// sseEvent is one parsed Server-Sent Events block: an optional event type
// and the joined data payload.
type sseEvent struct {
	Type string
	Data string
}

// sseParser is a stateful line-at-a-time SSE parser. It accumulates
// "event:" and "data:" fields and emits a completed event when it sees the
// blank-line block terminator. Both the line length and the total event
// count are bounded; violations are logged and dropped, never buffered.
type sseParser struct {
	logger     *slog.Logger
	dataLines  []string
	eventType  string
	eventCount int
}

// feed consumes one line (newline already stripped) and returns the
// completed event, if the line terminated one.
func (p *sseParser) feed(line string) (sseEvent, bool) {
	if len(line) > maxSSELineLength {
		p.logger.Warn("bud: dropping SSE line over length limit",
			"length", len(line), "limit", maxSSELineLength)
		return sseEvent{}, false
	}

	// Blank line terminates the current block.
	if line == "" {
		if len(p.dataLines) == 0 {
			return sseEvent{}, false
		}
		ev := sseEvent{
			Type: p.eventType,
			Data: strings.Join(p.dataLines, "\n"),
		}
		p.dataLines = nil
		p.eventType = ""

		if p.eventCount >= maxSSEEvents {
			p.logger.Warn("bud: dropping SSE event over stream event limit",
				"limit", maxSSEEvents)
			return sseEvent{}, false
		}
		p.eventCount++
		return ev, true
	}

	// Comment line.
	if strings.HasPrefix(line, ":") {
		return sseEvent{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		field = line
		value = ""
	}
	// The SSE spec strips a single leading space from the value.
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "data":
		p.dataLines = append(p.dataLines, value)
	case "event":
		p.eventType = value
	default:
		// id, retry, and unknown fields are ignored.
	}
	return sseEvent{}, false
}

// lineReader reads newline-delimited lines from a stream without ever
// holding more than maxSSELineLength bytes of a single line. Over-long
// lines are discarded to the next newline and skipped with a warning.
type lineReader struct {
	r      *bufio.Reader
	logger *slog.Logger
}

func newLineReader(r io.Reader, logger *slog.Logger) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024), logger: logger}
}

// next returns the next line with the trailing newline (and any carriage
// return) removed. It returns io.EOF when the stream is exhausted.
func (lr *lineReader) next() (string, error) {
	var buf []byte
	overflow := false
	for {
		frag, err := lr.r.ReadSlice('\n')
		if !overflow {
			if len(buf)+len(frag) > maxSSELineLength {
				overflow = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue // line not finished yet, keep consuming
		}
		if err != nil {
			if overflow {
				lr.logger.Warn("bud: dropping SSE line over length limit",
					"limit", maxSSELineLength)
				if !errors.Is(err, io.EOF) {
					return "", err
				}
				return "", io.EOF
			}
			if len(buf) == 0 {
				return "", err
			}
			// Final line without a trailing newline.
			return trimLineEnding(string(buf)), nil
		}

		if overflow {
			lr.logger.Warn("bud: dropping SSE line over length limit",
				"limit", maxSSELineLength)
			overflow = false
			buf = nil
			continue
		}
		return trimLineEnding(string(buf)), nil
	}
}

func trimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// Stream is a server-sent-event stream that decodes each data payload into
// T. It is pull-based: call Next until it returns io.EOF, or range over
// All. The stream must be closed after use; Close is idempotent and Next
// closes the stream automatically once it ends.
//
// A Stream is intended for use by a single goroutine.
type Stream[T any] struct {
	body   io.ReadCloser
	lines  *lineReader
	parser sseParser
	logger *slog.Logger
	closed bool
	done   bool
	err    error
}

func newStream[T any](body io.ReadCloser, logger *slog.Logger) *Stream[T] {
	return &Stream[T]{
		body:   body,
		lines:  newLineReader(body, logger),
		parser: sseParser{logger: logger},
		logger: logger,
	}
}

// Next returns the next decoded event. It returns io.EOF after the
// end-of-stream sentinel or when the underlying stream is exhausted.
// Malformed payloads are logged and skipped, never surfaced as errors.
func (s *Stream[T]) Next() (T, error) {
	var zero T
	if s.done || s.closed {
		if s.err != nil {
			return zero, s.err
		}
		return zero, io.EOF
	}

	for {
		line, err := s.lines.next()
		if err != nil {
			s.done = true
			_ = s.Close()
			if !errors.Is(err, io.EOF) {
				s.err = err
				return zero, err
			}
			return zero, io.EOF
		}

		ev, ok := s.parser.feed(line)
		if !ok {
			continue
		}
		if ev.Data == sseDoneSentinel {
			s.done = true
			_ = s.Close()
			return zero, io.EOF
		}

		var out T
		if err := json.Unmarshal([]byte(ev.Data), &out); err != nil {
			s.logger.Warn("bud: skipping malformed SSE payload",
				"error", err, "event", ev.Type)
			continue
		}
		return out, nil
	}
}

// All returns an iterator over the remaining events. Iteration ends at
// end-of-stream or on a read error (check Err afterwards); the stream is
// closed either way.
func (s *Stream[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		defer func() { _ = s.Close() }()
		for {
			ev, err := s.Next()
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Err returns the terminal read error, if iteration ended on one.
// A clean end-of-stream leaves Err nil.
func (s *Stream[T]) Err() error {
	return s.err
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream[T]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
