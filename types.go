package odm

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"sync"
	"time"
)

// Op names a predicate or query operation.
type Op string

const (
	OpTrue    Op = "true"
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpNull    Op = "null"
	OpNotNull Op = "notnull"
	OpNot     Op = "not"
	OpBetween Op = "between"
)

type defaultMarker struct{}

// DefaultValue, passed to Coerce, asks for the property's declared default.
var DefaultValue any = defaultMarker{}

// PropDef declares a single property. CheckDefinition normalizes the bounds
// in place, so compiled models hold their own copies.
type PropDef struct {
	Type      string    `yaml:"type" json:"type,omitempty"`
	Required  bool      `yaml:"required" json:"required,omitempty"`
	Default   any       `yaml:"default" json:"default,omitempty"`
	Min       any       `yaml:"min" json:"min,omitempty"`
	Max       any       `yaml:"max" json:"max,omitempty"`
	Step      float64   `yaml:"step" json:"step,omitempty"`
	Pattern   string    `yaml:"pattern" json:"pattern,omitempty"`
	MinLength int       `yaml:"minLength" json:"minLength,omitempty"`
	MaxLength int       `yaml:"maxLength" json:"maxLength,omitempty"`
	Enum      []string  `yaml:"enum" json:"enum,omitempty"`
	Index     IndexDefs `yaml:"index" json:"index,omitempty"`

	pattern *regexp.Regexp
}

func (def *PropDef) clone() *PropDef {
	c := *def
	c.Enum = append([]string(nil), def.Enum...)
	c.Index = append(IndexDefs(nil), def.Index...)
	return &c
}

func (def *PropDef) defaultValue() any {
	if def == nil {
		return nil
	}
	if f, ok := def.Default.(func() any); ok {
		return f()
	}
	return def.Default
}

// TypeHandler implements one scalar kind. Every method is a pure function of
// its arguments; none of them panics on bad input.
type TypeHandler interface {
	Name() string

	// CheckDefinition validates the declared constraints, parsing bounds
	// into the canonical representation.
	CheckDefinition(def *PropDef) []error

	// Coerce converts arbitrary input into the canonical representation.
	// Unparsable input yields NaN for numeric kinds and nil otherwise.
	Coerce(value any, def *PropDef) any

	Validate(name string, value any, def *PropDef, out *Violations)

	Serialize(value any) any
	Deserialize(value any) any

	Compare(value, ref any, op Op) bool

	// Sort orders canonical values, nulls last.
	Sort(a, b any) int

	// IndexKey folds a canonical value into an index key.
	IndexKey(value any) any
}

// TypeRegistry maps type names and aliases to handlers.
type TypeRegistry struct {
	mu       sync.Mutex
	handlers []TypeHandler
	aliases  map[string][]string
	resolved map[string]TypeHandler
}

// NewTypeRegistry returns a registry holding the builtin kinds.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{aliases: make(map[string][]string)}
	r.Register(BooleanType{}, "bool")
	r.Register(IntegerType{}, "int")
	r.Register(NumberType{}, "float", "double")
	r.Register(DateType{}, "datetime", "time")
	r.Register(StringType{}, "text")
	r.Register(UUIDType{}, "id", "identifier")
	return r
}

// Register adds a handler. A handler with the same name replaces the old one.
func (r *TypeRegistry) Register(h TypeHandler, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := h.Name()
	for i, old := range r.handlers {
		if old.Name() == name {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			break
		}
	}
	r.handlers = append(r.handlers, h)
	r.aliases[name] = append([]string(nil), aliases...)
	r.resolved = nil
}

// Lookup resolves a type name or alias.
func (r *TypeRegistry) Lookup(name string) (TypeHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved == nil {
		r.resolve()
	}
	h, ok := r.resolved[name]
	return h, ok
}

func (r *TypeRegistry) resolve() {
	r.resolved = make(map[string]TypeHandler, len(r.handlers)*3)
	for _, h := range r.handlers {
		for _, alias := range r.aliases[h.Name()] {
			r.resolved[alias] = h
		}
	}
	// canonical names win over aliases
	for _, h := range r.handlers {
		r.resolved[h.Name()] = h
	}
}

// Names lists canonical type names in registration order.
func (r *TypeRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.handlers))
	for i, h := range r.handlers {
		names[i] = h.Name()
	}
	return names
}

// compareWith evaluates op given a three-way comparator for non-null values.
//
// Null policy: null eq/lte/gte null holds, lt/gt involving null never holds,
// neq is the negation of eq. An invalid (NaN) reference matches nothing.
func compareWith(c func(a, b any) int, value, ref any, op Op) bool {
	vn, rn := isNull(value), ref == nil
	switch op {
	case OpNull:
		return vn
	case OpNotNull:
		return !vn
	case OpNot:
		return vn || isFalsy(value)
	}
	if isInvalid(ref) {
		return false
	}
	if vn || rn {
		switch op {
		case OpEq, OpLte, OpGte:
			return vn && rn
		case OpNeq:
			return vn != rn
		default:
			return false
		}
	}
	d := c(value, ref)
	switch op {
	case OpEq:
		return d == 0
	case OpNeq:
		return d != 0
	case OpLt:
		return d < 0
	case OpLte:
		return d <= 0
	case OpGt:
		return d > 0
	case OpGte:
		return d >= 0
	default:
		return false
	}
}

func isFalsy(v any) bool {
	switch v := v.(type) {
	case bool:
		return !v
	case int64:
		return v == 0
	case float64:
		return v == 0
	case string:
		return v == ""
	case ID:
		return v.IsZero()
	case time.Time:
		return v.IsZero()
	default:
		return false
	}
}

// sortWith wraps a non-null comparator with nulls-last ordering.
func sortWith(c func(a, b any) int, a, b any) int {
	an, bn := isNull(a), isNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	default:
		return c(a, b)
	}
}

// normalizeKey maps Go numeric widths and times onto the key types the
// equality index orders: bool, int64, float64, string and ID.
func normalizeKey(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return uint64Key(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return uint64Key(v)
	case float32:
		return float64(v)
	case time.Time:
		return v.UnixMilli()
	case []byte:
		return string(v)
	default:
		return v
	}
}

func uint64Key(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

func keyRank(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case ID:
		return 3
	default:
		return 4
	}
}

// compareKeys is the natural order of normalized index keys. Keys of
// different kinds order by kind; int64 and float64 compare numerically.
func compareKeys(a, b any) int {
	ra, rb := keyRank(a), keyRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch a := a.(type) {
	case bool:
		b := b.(bool)
		switch {
		case a == b:
			return 0
		case !a:
			return -1
		default:
			return 1
		}
	case int64:
		switch b := b.(type) {
		case int64:
			return cmp.Compare(a, b)
		case float64:
			return cmp.Compare(float64(a), b)
		}
	case float64:
		switch b := b.(type) {
		case int64:
			return cmp.Compare(a, float64(b))
		case float64:
			return cmp.Compare(a, b)
		}
	case string:
		return cmp.Compare(a, b.(string))
	case ID:
		b := b.(ID)
		return compareIDs(a, b)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
