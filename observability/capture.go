package observability

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// maxAttrLength caps the rendered length of any captured value. Longer
// values are truncated to exactly this length, ellipsis included.
const maxAttrLength = 1000

const (
	attrInputPrefix        = "track.input."
	attrOutput             = "track.output"
	attrOutputPrefix       = "track.output."
	attrType               = "track.type"
	attrYieldCount         = "track.yield_count"
	attrGeneratorCompleted = "track.generator_completed"
)

// safeRender renders v as a string, truncated to maxAttrLength. Values
// whose formatting panics render as a placeholder instead of unwinding
// into the caller.
func safeRender(v any) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<unrepresentable %T>", v)
		}
	}()
	s = truncate(fmt.Sprintf("%v", v))
	return s
}

// truncate limits s to maxAttrLength runes. Truncated values end in "..."
// and are exactly maxAttrLength long.
func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxAttrLength {
		return s
	}
	return string(r[:maxAttrLength-3]) + "..."
}

// captureInputs renders the fields of args into track.input.* attributes.
// args must be a struct, a pointer to a struct, or a map with string keys;
// anything else cannot be bound to named inputs and yields no attributes.
// Field names come from the json tag when present, else the lowered field
// name. Names in ignore are skipped.
func captureInputs(args any, ignore map[string]struct{}, logger *slog.Logger) []attribute.KeyValue {
	if args == nil {
		return nil
	}
	v := reflect.ValueOf(args)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		return captureStructInputs(v, ignore)
	case reflect.Map:
		return captureMapInputs(v, ignore)
	default:
		if logger != nil {
			logger.Debug("cannot bind inputs to named parameters",
				slog.String("type", fmt.Sprintf("%T", args)))
		}
		return nil
	}
}

func captureStructInputs(v reflect.Value, ignore map[string]struct{}) []attribute.KeyValue {
	t := v.Type()
	attrs := make([]attribute.KeyValue, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		if _, skip := ignore[name]; skip {
			continue
		}
		attrs = append(attrs, attribute.String(attrInputPrefix+name, safeRender(v.Field(i).Interface())))
	}
	return attrs
}

func captureMapInputs(v reflect.Value, ignore map[string]struct{}) []attribute.KeyValue {
	if v.Type().Key().Kind() != reflect.String {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		name := iter.Key().String()
		if _, skip := ignore[name]; skip {
			continue
		}
		attrs = append(attrs, attribute.String(attrInputPrefix+name, safeRender(iter.Value().Interface())))
	}
	return attrs
}

func fieldName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}
	return strings.ToLower(field.Name)
}

// captureOutput renders a function result. Maps with string keys expand to
// track.output.<key> attributes; everything else records as track.output.
func captureOutput(result any) []attribute.KeyValue {
	if result == nil {
		return nil
	}
	v := reflect.ValueOf(result)
	if v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String {
		attrs := make([]attribute.KeyValue, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			attrs = append(attrs, attribute.String(attrOutputPrefix+iter.Key().String(), safeRender(iter.Value().Interface())))
		}
		return attrs
	}
	return []attribute.KeyValue{attribute.String(attrOutput, safeRender(result))}
}

// aggregateItems is the default generator aggregator. All-string item
// lists concatenate directly so streamed text chunks reassemble into the
// original text; anything else renders as a list.
func aggregateItems[T any](items []T) any {
	if len(items) == 0 {
		return fmt.Sprintf("%v", items)
	}
	parts := make([]string, len(items))
	for i, item := range items {
		s, ok := any(item).(string)
		if !ok {
			return fmt.Sprintf("%v", items)
		}
		parts[i] = s
	}
	return strings.Join(parts, "")
}

// runAggregator applies an aggregator to collected items. A panicking
// aggregator is contained: the failure is logged and the items fall back to
// the default rendering.
func runAggregator[T any](agg func([]T) any, items []T, logger *slog.Logger) (out any) {
	if agg == nil {
		return aggregateItems(items)
	}
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Warn("output aggregator panicked, falling back to default rendering",
					slog.Any("panic", r))
			}
			out = aggregateItems(items)
		}
	}()
	return agg(items)
}
