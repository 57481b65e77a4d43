package odm

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// Lifecycle hook names.
const (
	HookBeforeSave   = "beforeSave"
	HookAfterSave    = "afterSave"
	HookBeforeRemove = "beforeRemove"
	HookAfterRemove  = "afterRemove"
	HookAfterLoad    = "afterLoad"
)

var knownHooks = []string{HookBeforeSave, HookAfterSave, HookBeforeRemove, HookAfterRemove, HookAfterLoad}

// Hook runs at a lifecycle point. An error aborts the operation.
type Hook func(ctx context.Context, r *Record) error

// Method is a callable bound to a record.
type Method func(ctx context.Context, r *Record, args ...any) (any, error)

// ComputedDef is a derived property. Set may be nil for read-only ones.
type ComputedDef struct {
	Get func(r *Record) any
	Set func(r *Record, value any) error
}

// IndexDef declares an index over one property. Reducer maps a non-null
// value to the stored key; ReducerName picks a named reducer instead.
type IndexDef struct {
	Op          Op            `yaml:"op" json:"op"`
	ReducerName string        `yaml:"reducer" json:"reducer,omitempty"`
	Reducer     func(any) any `yaml:"-" json:"-"`
}

type IndexDefs []IndexDef

// indexOps lists the declarable index operations. All of them are served by
// an EqualityIndex; the ordered ones walk the same tree.
var indexOps = map[Op]bool{
	OpEq:  true,
	OpGt:  true,
	OpLt:  true,
	OpGte: true,
	OpLte: true,
}

// SchemaDef is the declarative description of a model.
type SchemaDef struct {
	// Extends names the base model when defining through a Registry.
	Extends string `yaml:"extends"`

	Props    map[string]*PropDef    `yaml:"props"`
	Computed map[string]ComputedDef `yaml:"-"`
	Methods  map[string]Method      `yaml:"-"`
	Hooks    map[string][]Hook      `yaml:"-"`

	// Indices adds index definitions to properties, alongside PropDef.Index.
	Indices map[string]IndexDefs `yaml:"indices"`
}

// Schema is the merged, immutable schema of a compiled model.
type Schema struct {
	props     map[string]*PropDef
	propNames []string
	computed  map[string]ComputedDef
	methods   map[string]Method
	hooks     map[string][]Hook
}

func (s *Schema) PropNames() []string {
	return slices.Clone(s.propNames)
}

// Prop returns a copy of the named property's definition.
func (s *Schema) Prop(name string) (PropDef, bool) {
	def, ok := s.props[name]
	if !ok {
		return PropDef{}, false
	}
	return *def.clone(), true
}

func (s *Schema) ComputedNames() []string {
	return slices.Sorted(maps.Keys(s.computed))
}

func (s *Schema) MethodNames() []string {
	return slices.Sorted(maps.Keys(s.methods))
}

func (s *Schema) HookCount(name string) int {
	return len(s.hooks[name])
}

// Has reports whether name is a property, computed property or method.
func (s *Schema) Has(name string) bool {
	_, p := s.props[name]
	_, c := s.computed[name]
	_, m := s.methods[name]
	return p || c || m
}

var reservedNames = []string{"super", "prototype", "constructor"}

func isReservedName(name string) bool {
	return slices.Contains(reservedNames, name) || strings.HasPrefix(name, "$")
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Builtin named reducers.
var builtinReducers = map[string]func(any) any{
	"lower": func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
		return v
	},
	"trim": func(v any) any {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return v
	},
	"day": func(v any) any {
		if t, ok := v.(time.Time); ok {
			return t.UTC().Truncate(24 * time.Hour)
		}
		return v
	},
}
