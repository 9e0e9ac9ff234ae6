package observability

type fieldMode int

const (
	fieldDefault fieldMode = iota
	fieldAll
	fieldNone
	fieldSubset
)

// FieldCapture directs which request and response fields are recorded as
// span attributes. The zero value applies the instrumentation's safe
// defaults. A FieldCapture is resolved once, when instrumentation is
// installed, not on every call.
type FieldCapture struct {
	mode   fieldMode
	fields []string
}

// CaptureAll records every known field.
func CaptureAll() FieldCapture { return FieldCapture{mode: fieldAll} }

// CaptureNone records no fields.
func CaptureNone() FieldCapture { return FieldCapture{mode: fieldNone} }

// CaptureFields records only the named fields. Unknown names are ignored.
func CaptureFields(names ...string) FieldCapture {
	return FieldCapture{mode: fieldSubset, fields: names}
}

// fieldSet is the resolved form of a FieldCapture directive. Lookups are
// map hits, cheap enough for per-call checks.
type fieldSet struct {
	all     bool
	allowed map[string]struct{}
}

// resolve computes the effective field set given the safe defaults for the
// instrumentation point.
func (fc FieldCapture) resolve(defaults []string) fieldSet {
	switch fc.mode {
	case fieldAll:
		return fieldSet{all: true}
	case fieldNone:
		return fieldSet{allowed: map[string]struct{}{}}
	case fieldSubset:
		allowed := make(map[string]struct{}, len(fc.fields))
		for _, f := range fc.fields {
			allowed[f] = struct{}{}
		}
		return fieldSet{allowed: allowed}
	default:
		allowed := make(map[string]struct{}, len(defaults))
		for _, f := range defaults {
			allowed[f] = struct{}{}
		}
		return fieldSet{allowed: allowed}
	}
}

func (fs fieldSet) empty() bool {
	return !fs.all && len(fs.allowed) == 0
}

func (fs fieldSet) allows(name string) bool {
	if fs.all {
		return true
	}
	_, ok := fs.allowed[name]
	return ok
}
