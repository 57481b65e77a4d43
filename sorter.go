package odm

import (
	"context"
	"iter"
	"slices"
)

// sortRecords reorders src by hint.prop, through the property's index when
// it has one and by buffering everything otherwise.
func (m *Model) sortRecords(ctx context.Context, src iter.Seq2[*Record, error], hint sortHint) (iter.Seq2[*Record, error], error) {
	if d := m.indexFor(hint.prop); d != nil {
		order, err := m.traverse(d, BetweenOptions{Descending: hint.descending, AppendNullItems: true})
		if err != nil {
			return nil, err
		}
		return mergeByIndex(src, order), nil
	}
	return m.bufferSort(ctx, src, hint), nil
}

// mergeByIndex emits records of src in the order of the index traversal.
//
// A cursor walks the traversal. A record at the cursor passes straight
// through and advances it; one that arrives early waits in pending until the
// cursor reaches it. Records the traversal never reaches come out last, in
// arrival order.
func mergeByIndex(src iter.Seq2[*Record, error], order iter.Seq2[any, ID]) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		next, stop := iter.Pull2(order)
		defer stop()

		_, cur, ok := next()
		advance := func() {
			_, cur, ok = next()
		}
		pending := make(map[ID]*Record)
		var arrival []ID

		flush := func() bool {
			for ok {
				r, found := pending[cur]
				if !found {
					return true
				}
				delete(pending, cur)
				if !yield(r, nil) {
					return false
				}
				advance()
			}
			return true
		}

		for r, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if ok && r.ID() == cur {
				if !yield(r, nil) {
					return
				}
				advance()
				if !flush() {
					return
				}
				continue
			}
			pending[r.ID()] = r
			arrival = append(arrival, r.ID())
		}

		for ok && len(pending) > 0 {
			if r, found := pending[cur]; found {
				delete(pending, cur)
				if !yield(r, nil) {
					return
				}
			}
			advance()
		}
		for _, id := range arrival {
			r, found := pending[id]
			if !found {
				continue
			}
			delete(pending, id)
			if !yield(r, nil) {
				return
			}
		}
	}
}

// bufferSort loads and collects every record, then sorts by the handler's
// order. Nulls come last in both directions.
func (m *Model) bufferSort(ctx context.Context, src iter.Seq2[*Record, error], hint sortHint) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		var all []*Record
		for r, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			all = append(all, r)
		}
		if err := m.loadAll(ctx, all); err != nil {
			yield(nil, err)
			return
		}
		m.metrics.bufferSorts.Inc()
		cp := m.propIndex[hint.prop]
		slices.SortStableFunc(all, func(a, b *Record) int {
			return compareForSort(cp.handler, a.props[cp.name], b.props[cp.name], hint.descending)
		})
		for _, r := range all {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func compareForSort(h TypeHandler, a, b any, descending bool) int {
	an, bn := isNull(a), isNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case descending:
		return h.Sort(b, a)
	default:
		return h.Sort(a, b)
	}
}
