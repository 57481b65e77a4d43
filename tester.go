package odm

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// sortHint is the requested ordering, passed to testers so they can reuse
// one index traversal for filtering and sorting.
type sortHint struct {
	prop       string
	descending bool
}

// tester produces the records matching one query clause.
type tester interface {
	records(ctx context.Context) iter.Seq2[*Record, error]

	// ordered reports whether records already come in hint order.
	ordered() bool
}

type testerFactory func(m *Model, op Op, arg Operand, hint sortHint) (tester, error)

var testers = map[Op]testerFactory{
	OpTrue:    newMatchAllTester,
	OpEq:      newEqualityTester,
	OpNeq:     newComparisonTester,
	OpLt:      newComparisonTester,
	OpGt:      newComparisonTester,
	OpLte:     newComparisonTester,
	OpGte:     newComparisonTester,
	OpNull:    newNullTester,
	OpNotNull: newNotNullTester,
	OpBetween: newRangeTester,
}

func (m *Model) compileQuery(q Query, hint sortHint) (tester, error) {
	op, arg, err := q.single(m.name)
	if err != nil {
		return nil, err
	}
	factory, ok := testers[op]
	if !ok {
		return nil, queryErrf(m.name, "unknown operation %q", op)
	}
	if op != OpTrue {
		if arg.Name == "" {
			return nil, queryErrf(m.name, "%s: missing property name", op)
		}
		if _, ok := m.propIndex[arg.Name]; !ok {
			return nil, queryErrf(m.name, "%s: unknown property %q", op, arg.Name)
		}
	}
	return factory(m, op, arg, hint)
}

// idTester yields unloaded instances for a sequence of IDs read from an index.
type idTester struct {
	m         *Model
	ids       iter.Seq2[any, ID]
	isOrdered bool
}

func (t *idTester) ordered() bool { return t.isOrdered }

func (t *idTester) records(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for _, id := range t.ids {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(t.m.Instance(id), nil) {
				return
			}
		}
	}
}

// lookup and traverse read the index while holding m.mu and hand out a copy
// of the matches, so saves may run while the result is consumed.
func (m *Model) lookup(d *indexDescriptor, value any) (tester, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := d.index.FindKeyed(value, d.rev)
	if err != nil {
		return nil, err
	}
	m.metrics.indexLookups.Inc()
	return &idTester{m: m, ids: snapshot(ids)}, nil
}

func (m *Model) traverse(d *indexDescriptor, opt BetweenOptions) (iter.Seq2[any, ID], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, err := d.between(opt)
	if err != nil {
		return nil, err
	}
	m.metrics.indexLookups.Inc()
	return snapshot(ids), nil
}

type keyedID struct {
	key any
	id  ID
}

func snapshot(seq iter.Seq2[any, ID]) iter.Seq2[any, ID] {
	var entries []keyedID
	for k, id := range seq {
		entries = append(entries, keyedID{k, id})
	}
	return func(yield func(any, ID) bool) {
		for _, e := range entries {
			if !yield(e.key, e.id) {
				return
			}
		}
	}
}

// operand coerces a query value to the property's type. Input that doesn't
// parse is an error rather than a null reference; a blank string means null,
// as it does for record properties.
func (m *Model) operand(op Op, cp *compiledProp, v any) (any, error) {
	ref := cp.coerce(v)
	if isInvalid(ref) || (ref == nil && v != nil && !isBlank(v)) {
		return nil, queryErrf(m.name, "%s: invalid %s value %#v for %q", op, cp.def.Type, v, cp.name)
	}
	return ref, nil
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func newEqualityTester(m *Model, op Op, arg Operand, hint sortHint) (tester, error) {
	d := m.indexFor(arg.Name)
	if d == nil {
		return newComparisonTester(m, op, arg, hint)
	}
	ref, err := m.operand(op, m.propIndex[arg.Name], arg.Value)
	if err != nil {
		return nil, err
	}
	t, err := m.lookup(d, ref)
	if err != nil {
		return nil, err
	}
	t.(*idTester).isOrdered = hint.prop == arg.Name
	return t, nil
}

func newNullTester(m *Model, op Op, arg Operand, hint sortHint) (tester, error) {
	d := m.indexFor(arg.Name)
	if d == nil {
		return newComparisonTester(m, op, arg, hint)
	}
	t, err := m.lookup(d, nil)
	if err != nil {
		return nil, err
	}
	t.(*idTester).isOrdered = hint.prop == arg.Name
	return t, nil
}

func newNotNullTester(m *Model, op Op, arg Operand, hint sortHint) (tester, error) {
	d := m.indexFor(arg.Name)
	if d == nil {
		return newComparisonTester(m, op, arg, hint)
	}
	same := hint.prop == arg.Name
	ids, err := m.traverse(d, BetweenOptions{Descending: same && hint.descending})
	if err != nil {
		return nil, err
	}
	return &idTester{m: m, ids: ids, isOrdered: same}, nil
}

// newRangeTester serves between from an index. There is no full-scan
// fallback: an unindexed range query fails.
func newRangeTester(m *Model, op Op, arg Operand, hint sortHint) (tester, error) {
	d := m.indexFor(arg.Name)
	if d == nil {
		return nil, &UnsupportedQueryError{Model: m.name, Op: string(op), Prop: arg.Name, Msg: "property has no index"}
	}
	cp := m.propIndex[arg.Name]
	lower, err := m.operand(op, cp, arg.Lower)
	if err != nil {
		return nil, err
	}
	upper, err := m.operand(op, cp, arg.Upper)
	if err != nil {
		return nil, err
	}
	same := hint.prop == arg.Name
	ids, err := m.traverse(d, BetweenOptions{
		Lower:      lower,
		Upper:      upper,
		Descending: same && hint.descending,
	})
	if err != nil {
		return nil, err
	}
	return &idTester{m: m, ids: ids, isOrdered: same}, nil
}

// newMatchAllTester walks the sort property's index when there is one, any
// other index otherwise, and only falls back to listing keys without one.
func newMatchAllTester(m *Model, op Op, arg Operand, hint sortHint) (tester, error) {
	if hint.prop != "" {
		if d := m.indexFor(hint.prop); d != nil {
			ids, err := m.traverse(d, BetweenOptions{Descending: hint.descending, AppendNullItems: true})
			if err != nil {
				return nil, err
			}
			return &idTester{m: m, ids: ids, isOrdered: true}, nil
		}
	}
	if len(m.indices) > 0 {
		ids, err := m.traverse(m.indices[0], BetweenOptions{AppendNullItems: true})
		if err != nil {
			return nil, err
		}
		return &idTester{m: m, ids: ids}, nil
	}
	return &scanTester{m: m}, nil
}

// scanTester lists every record key of the model.
type scanTester struct {
	m *Model

	// match, when set, loads each record and keeps those it accepts.
	match func(r *Record) bool
}

func newComparisonTester(m *Model, op Op, arg Operand, hint sortHint) (tester, error) {
	cp := m.propIndex[arg.Name]
	var ref any
	if op != OpNull && op != OpNotNull {
		var err error
		if ref, err = m.operand(op, cp, arg.Value); err != nil {
			return nil, err
		}
	}
	return &scanTester{m: m, match: func(r *Record) bool {
		return cp.handler.Compare(r.props[cp.name], ref, op)
	}}, nil
}

func (t *scanTester) ordered() bool { return false }

func (t *scanTester) records(ctx context.Context) iter.Seq2[*Record, error] {
	m := t.m
	return func(yield func(*Record, error) bool) {
		if err := m.requireAdapter(); err != nil {
			yield(nil, err)
			return
		}
		m.metrics.fullScans.Inc()
		opt := KeyStreamOptions{Prefix: itemsPrefix(m.name), MaxDepth: 1, Separator: "/"}
		for key, err := range m.adapter.KeyStream(ctx, opt) {
			if err != nil {
				yield(nil, err)
				return
			}
			_, id, err := ParseRecordKey(key)
			if err != nil {
				continue
			}
			r := m.Instance(id)
			if t.match != nil {
				if err := r.Load(ctx); errors.Is(err, ErrNotFound) {
					continue
				} else if err != nil {
					yield(nil, err)
					return
				}
				if !t.match(r) {
					continue
				}
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
