package odm

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// FindMeta receives totals of a Find call.
type FindMeta struct {
	// Count is the number of matches regardless of Offset and Limit.
	Count int
}

type FindOptions struct {
	Offset int

	// Limit caps the number of results; zero or negative means no limit.
	Limit int

	// SortBy names the property to order by; empty leaves the order to the
	// strategy serving the query.
	SortBy     string
	Descending bool

	// NoLoad returns records without reading their properties.
	NoLoad bool

	// Meta, when set, receives the total match count. Counting consumes
	// every match even past Limit.
	Meta *FindMeta
}

// Find returns the records matching q.
func (m *Model) Find(ctx context.Context, q Query, opt FindOptions) ([]*Record, error) {
	seq, err := m.stream(ctx, q, opt)
	if err != nil {
		return nil, err
	}
	var (
		out  []*Record
		seen int
	)
	for r, err := range seq {
		if err != nil {
			return nil, err
		}
		seen++
		if seen <= opt.Offset {
			continue
		}
		if opt.Limit > 0 && len(out) >= opt.Limit {
			if opt.Meta == nil {
				break
			}
			continue
		}
		out = append(out, r)
	}
	if opt.Meta != nil {
		opt.Meta.Count = seen
	}
	if !opt.NoLoad {
		if err := m.loadAll(ctx, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Iter streams the records matching q, honoring Offset, Limit and sorting.
// Records come unloaded unless the strategy had to load them; Meta and
// NoLoad are ignored.
func (m *Model) Iter(ctx context.Context, q Query, opt FindOptions) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		seq, err := m.stream(ctx, q, opt)
		if err != nil {
			yield(nil, err)
			return
		}
		var seen, n int
		for r, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			seen++
			if seen <= opt.Offset {
				continue
			}
			if opt.Limit > 0 && n >= opt.Limit {
				return
			}
			n++
			if !yield(r, nil) {
				return
			}
		}
	}
}

// List is Find matching every record.
func (m *Model) List(ctx context.Context, opt FindOptions) ([]*Record, error) {
	return m.Find(ctx, All(), opt)
}

// FindByAttribute is Find for a single comparison, e.g. (age, 23, OpEq).
func (m *Model) FindByAttribute(ctx context.Context, name string, value any, op Op, opt FindOptions) ([]*Record, error) {
	if op == "" {
		op = OpEq
	}
	return m.Find(ctx, Query{op: {Name: name, Value: value}}, opt)
}

func (m *Model) stream(ctx context.Context, q Query, opt FindOptions) (iter.Seq2[*Record, error], error) {
	if opt.Offset < 0 {
		return nil, queryErrf(m.name, "negative offset %d", opt.Offset)
	}
	if opt.SortBy != "" {
		if _, ok := m.propIndex[opt.SortBy]; !ok {
			return nil, queryErrf(m.name, "cannot sort by unknown property %q", opt.SortBy)
		}
	}
	if err := m.IndexLoaded(ctx); err != nil {
		return nil, err
	}
	hint := sortHint{prop: opt.SortBy, descending: opt.Descending}
	t, err := m.compileQuery(q, hint)
	if err != nil {
		return nil, err
	}
	seq := t.records(ctx)
	if hint.prop != "" && !t.ordered() {
		seq, err = m.sortRecords(ctx, seq, hint)
		if err != nil {
			return nil, err
		}
	}
	return seq, nil
}

// loadAll loads every record not yet loaded, in parallel. The first failure
// is returned.
func (m *Model) loadAll(ctx context.Context, recs []*Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.loadConcurrency)
	for _, r := range recs {
		if r.IsLoaded() {
			continue
		}
		g.Go(func() error {
			return r.Load(gctx)
		})
	}
	return g.Wait()
}
