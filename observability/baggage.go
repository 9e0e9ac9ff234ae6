package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Baggage keys propagated across service boundaries and stamped onto spans.
const (
	BaggageProjectID = "bud.project_id"
	BaggageSessionID = "bud.session_id"
	BaggageUserID    = "bud.user_id"
)

const baggageKeyPrefix = "bud."

// WithBaggage returns a context carrying the given bud.* baggage entries.
// Invalid keys or values are skipped.
func WithBaggage(ctx context.Context, pairs map[string]string) context.Context {
	bag := baggage.FromContext(ctx)
	for k, v := range pairs {
		member, err := baggage.NewMemberRaw(k, v)
		if err != nil {
			continue
		}
		if next, err := bag.SetMember(member); err == nil {
			bag = next
		}
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// baggageSpanProcessor copies bud.* baggage entries onto every span at
// start, so project/session/user identity lands on spans created anywhere
// below the context that carries it.
type baggageSpanProcessor struct{}

func newBaggageSpanProcessor() sdktrace.SpanProcessor {
	return baggageSpanProcessor{}
}

func (baggageSpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	for _, member := range baggage.FromContext(parent).Members() {
		if !strings.HasPrefix(member.Key(), baggageKeyPrefix) {
			continue
		}
		s.SetAttributes(attribute.String(member.Key(), member.Value()))
	}
}

func (baggageSpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (baggageSpanProcessor) Shutdown(context.Context) error { return nil }

func (baggageSpanProcessor) ForceFlush(context.Context) error { return nil }
