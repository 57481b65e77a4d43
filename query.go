package odm

import (
	"maps"
	"slices"
)

// Operand carries the arguments of a query operation.
type Operand struct {
	Name  string `json:"name,omitempty" yaml:"name"`
	Value any    `json:"value,omitempty" yaml:"value"`
	Lower any    `json:"lower,omitempty" yaml:"lower"`
	Upper any    `json:"upper,omitempty" yaml:"upper"`
}

// Query is a filter description: exactly one operation mapped to its
// operand, e.g. {"eq": {"name": "age", "value": 23}}.
type Query map[Op]Operand

func All() Query                   { return Query{OpTrue: {}} }
func Eq(name string, v any) Query  { return Query{OpEq: {Name: name, Value: v}} }
func Neq(name string, v any) Query { return Query{OpNeq: {Name: name, Value: v}} }
func Lt(name string, v any) Query  { return Query{OpLt: {Name: name, Value: v}} }
func Lte(name string, v any) Query { return Query{OpLte: {Name: name, Value: v}} }
func Gt(name string, v any) Query  { return Query{OpGt: {Name: name, Value: v}} }
func Gte(name string, v any) Query { return Query{OpGte: {Name: name, Value: v}} }
func IsNull(name string) Query     { return Query{OpNull: {Name: name}} }
func NotNull(name string) Query    { return Query{OpNotNull: {Name: name}} }

// Between matches values in [lower, upper]; a nil bound is open.
func Between(name string, lower, upper any) Query {
	return Query{OpBetween: {Name: name, Lower: lower, Upper: upper}}
}

func (q Query) single(model string) (Op, Operand, error) {
	if len(q) != 1 {
		ops := slices.Sorted(maps.Keys(q))
		return "", Operand{}, queryErrf(model, "want exactly one operation, got %d %v", len(q), ops)
	}
	for op, arg := range q {
		return op, arg, nil
	}
	panic("unreachable")
}
