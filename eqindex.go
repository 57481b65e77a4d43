package odm

import (
	"iter"
	"slices"

	"github.com/google/btree"
)

const defaultBTreeDegree = 32

// EqualityIndex maps property values to the IDs of records holding them.
// IDs whose value is null live in a separate list. Each ID appears at most
// once across the whole index.
//
// Every call passes the revision the caller believes is current. Mutations
// may advance it by exactly one; reads must match it exactly.
//
// An EqualityIndex has a single writer. Mutating it while one of its
// sequences is being iterated is not supported.
type EqualityIndex struct {
	name      string
	tree      *btree.BTreeG[*indexBucket]
	nullItems []ID
	revision  int64
	compare   func(a, b any) int
	reducer   func(any) any
}

type indexBucket struct {
	key any
	ids []ID
}

type EqualityIndexOptions struct {
	// Name identifies the index in errors.
	Name string

	// Compare orders keys; defaults to the natural order of normalized keys.
	Compare func(a, b any) int

	// Reducer maps a non-null value to the stored key. A nil result files
	// the ID under null.
	Reducer func(any) any

	Degree int
}

func NewEqualityIndex(opt EqualityIndexOptions) *EqualityIndex {
	if opt.Compare == nil {
		opt.Compare = compareKeys
	}
	if opt.Degree <= 1 {
		opt.Degree = defaultBTreeDegree
	}
	compare := opt.Compare
	return &EqualityIndex{
		name: opt.Name,
		tree: btree.NewG(opt.Degree, func(a, b *indexBucket) bool {
			return compare(a.key, b.key) < 0
		}),
		compare: compare,
		reducer: opt.Reducer,
	}
}

func (idx *EqualityIndex) Name() string {
	return idx.name
}

func (idx *EqualityIndex) Revision() int64 {
	return idx.revision
}

// CheckRevision verifies rev against the current revision. Without update,
// rev must be equal to it. With update, rev may also be exactly one greater,
// in which case the index advances to it.
func (idx *EqualityIndex) CheckRevision(rev int64, update bool) error {
	if err := idx.checkRevision(rev, update); err != nil {
		return err
	}
	idx.revision = rev
	return nil
}

// checkRevision is CheckRevision without advancing. Mutations advance only
// once they are known to succeed.
func (idx *EqualityIndex) checkRevision(rev int64, update bool) error {
	if rev < 0 {
		return consistencyErrf(idx.name, ErrRevisionMismatch, "malformed revision %d", rev)
	}
	if rev == idx.revision || (update && rev == idx.revision+1) {
		return nil
	}
	return consistencyErrf(idx.name, ErrRevisionMismatch, "revision %d, current %d", rev, idx.revision)
}

// key returns the stored key for value, nil for null. ok is false for the
// NaN invalid-number sentinel, which has no key and matches nothing.
func (idx *EqualityIndex) key(value any) (key any, ok bool) {
	if value == nil {
		return nil, true
	}
	if isInvalid(value) {
		return nil, false
	}
	if idx.reducer != nil {
		value = idx.reducer(value)
	}
	value = normalizeKey(value)
	if isInvalid(value) {
		return nil, false
	}
	return value, true
}

// Key returns the stored key for value, or nil for values filed under null
// and for invalid values.
func (idx *EqualityIndex) Key(value any) any {
	key, _ := idx.key(value)
	return key
}

// Add files id under value. Unless ignoreDuplicates is set, adding an ID
// already present in the target bucket fails. Invalid values are rejected.
func (idx *EqualityIndex) Add(id ID, value any, rev int64, ignoreDuplicates bool) error {
	key, ok := idx.key(value)
	if !ok {
		return consistencyErrf(idx.name, nil, "cannot index invalid value for id %v", id)
	}
	if err := idx.checkRevision(rev, true); err != nil {
		return err
	}
	if err := idx.add(id, key, ignoreDuplicates); err != nil {
		return err
	}
	idx.revision = rev
	return nil
}

func (idx *EqualityIndex) add(id ID, key any, ignoreDuplicates bool) error {
	if key == nil {
		if !ignoreDuplicates && slices.Contains(idx.nullItems, id) {
			return consistencyErrf(idx.name, nil, "duplicate id %v under null", id)
		}
		idx.nullItems = append(idx.nullItems, id)
		return nil
	}
	b, found := idx.tree.Get(&indexBucket{key: key})
	if !found {
		idx.tree.ReplaceOrInsert(&indexBucket{key: key, ids: []ID{id}})
		return nil
	}
	if !ignoreDuplicates && slices.Contains(b.ids, id) {
		return consistencyErrf(idx.name, nil, "duplicate id %v under %v", id, key)
	}
	b.ids = append(b.ids, id)
	return nil
}

// Find yields the IDs stored under value, or the null list when value is null.
func (idx *EqualityIndex) Find(value any, rev int64) (iter.Seq[ID], error) {
	seq, err := idx.FindKeyed(value, rev)
	if err != nil {
		return nil, err
	}
	return func(yield func(ID) bool) {
		for _, id := range seq {
			if !yield(id) {
				return
			}
		}
	}, nil
}

// FindKeyed is Find that also yields the matched key (nil for null items).
// An invalid value matches nothing.
func (idx *EqualityIndex) FindKeyed(value any, rev int64) (iter.Seq2[any, ID], error) {
	if err := idx.CheckRevision(rev, false); err != nil {
		return nil, err
	}
	key, valid := idx.key(value)
	return func(yield func(any, ID) bool) {
		var ids []ID
		if !valid {
			return
		} else if key == nil {
			ids = idx.nullItems
		} else if b, found := idx.tree.Get(&indexBucket{key: key}); found {
			ids = b.ids
		}
		for _, id := range ids {
			if !yield(key, id) {
				return
			}
		}
	}, nil
}

// BetweenOptions describes a range scan. Bounds are inclusive; a nil bound
// leaves that side open.
type BetweenOptions struct {
	Lower           any
	Upper           any
	Descending      bool
	AppendNullItems bool
}

// FindBetween yields (key, id) pairs of every bucket within the bounds, in
// key order. IDs sharing a key come in insertion order in both directions.
// With AppendNullItems, the null list follows the ranged results. An invalid
// bound empties the range.
func (idx *EqualityIndex) FindBetween(opt BetweenOptions, rev int64) (iter.Seq2[any, ID], error) {
	if err := idx.CheckRevision(rev, false); err != nil {
		return nil, err
	}
	lower, lok := idx.key(opt.Lower)
	upper, uok := idx.key(opt.Upper)
	return func(yield func(any, ID) bool) {
		if lok && uok && (lower == nil || upper == nil || idx.compare(lower, upper) <= 0) {
			if !idx.scan(lower, upper, opt.Descending, yield) {
				return
			}
		}
		if opt.AppendNullItems {
			for _, id := range idx.nullItems {
				if !yield(nil, id) {
					return
				}
			}
		}
	}, nil
}

func (idx *EqualityIndex) scan(lower, upper any, desc bool, yield func(any, ID) bool) bool {
	cont := true
	visit := func(b *indexBucket) bool {
		if desc {
			if lower != nil && idx.compare(b.key, lower) < 0 {
				return false
			}
		} else {
			if upper != nil && idx.compare(b.key, upper) > 0 {
				return false
			}
		}
		for _, id := range b.ids {
			if !yield(b.key, id) {
				cont = false
				return false
			}
		}
		return true
	}
	switch {
	case !desc && lower != nil:
		idx.tree.AscendGreaterOrEqual(&indexBucket{key: lower}, visit)
	case !desc:
		idx.tree.Ascend(visit)
	case upper != nil:
		idx.tree.DescendLessOrEqual(&indexBucket{key: upper}, visit)
	default:
		idx.tree.Descend(visit)
	}
	return cont
}

// Remove deletes id wherever it is filed. It scans the whole index; prefer
// RemoveValue when the value is known.
func (idx *EqualityIndex) Remove(id ID, rev int64) (bool, error) {
	if err := idx.CheckRevision(rev, true); err != nil {
		return false, err
	}
	return idx.removeAnywhere(id), nil
}

func (idx *EqualityIndex) removeAnywhere(id ID) bool {
	if i := slices.Index(idx.nullItems, id); i >= 0 {
		idx.nullItems = slices.Delete(idx.nullItems, i, i+1)
		return true
	}
	var found *indexBucket
	idx.tree.Ascend(func(b *indexBucket) bool {
		if slices.Contains(b.ids, id) {
			found = b
			return false
		}
		return true
	})
	if found == nil {
		return false
	}
	idx.removeFromBucket(found, id)
	return true
}

// RemoveValue deletes id from the bucket value maps to.
func (idx *EqualityIndex) RemoveValue(id ID, value any, rev int64) (bool, error) {
	if err := idx.CheckRevision(rev, true); err != nil {
		return false, err
	}
	key, ok := idx.key(value)
	if !ok {
		return false, nil
	}
	return idx.removeKey(id, key), nil
}

func (idx *EqualityIndex) removeKey(id ID, key any) bool {
	if key == nil {
		i := slices.Index(idx.nullItems, id)
		if i < 0 {
			return false
		}
		idx.nullItems = slices.Delete(idx.nullItems, i, i+1)
		return true
	}
	b, found := idx.tree.Get(&indexBucket{key: key})
	if !found {
		return false
	}
	return idx.removeFromBucket(b, id)
}

func (idx *EqualityIndex) removeFromBucket(b *indexBucket, id ID) bool {
	i := slices.Index(b.ids, id)
	if i < 0 {
		return false
	}
	b.ids = slices.Delete(b.ids, i, i+1)
	if len(b.ids) == 0 {
		idx.tree.Delete(b)
	}
	return true
}

// Update moves id from oldValue's bucket to newValue's. Without
// searchExisting, id must be filed under oldValue or Update fails with a
// ConsistencyError. With searchExisting, id is removed from wherever it is and
// re-added only if it was found; the result reports whether that happened.
//
// A failed Update leaves id where it was.
func (idx *EqualityIndex) Update(id ID, oldValue, newValue any, rev int64, searchExisting bool) (bool, error) {
	newKey, ok := idx.key(newValue)
	if !ok {
		return false, consistencyErrf(idx.name, nil, "cannot index invalid value for id %v", id)
	}
	if err := idx.checkRevision(rev, true); err != nil {
		return false, err
	}
	if searchExisting {
		idx.revision = rev
		if !idx.removeAnywhere(id) {
			return false, nil
		}
		return true, idx.add(id, newKey, false)
	}
	oldKey, _ := idx.key(oldValue)
	if !idx.contains(oldKey, id) {
		return false, consistencyErrf(idx.name, nil, "id %v not found under %v", id, oldKey)
	}
	if !idx.keysEqual(oldKey, newKey) && idx.contains(newKey, id) {
		return false, consistencyErrf(idx.name, nil, "duplicate id %v under %v", id, newKey)
	}
	idx.revision = rev
	idx.removeKey(id, oldKey)
	return true, idx.add(id, newKey, false)
}

func (idx *EqualityIndex) contains(key any, id ID) bool {
	if key == nil {
		return slices.Contains(idx.nullItems, id)
	}
	b, found := idx.tree.Get(&indexBucket{key: key})
	return found && slices.Contains(b.ids, id)
}

func (idx *EqualityIndex) keysEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return idx.compare(a, b) == 0
}

// Clear drops all entries and makes rev the new current revision.
func (idx *EqualityIndex) Clear(rev int64) error {
	if rev < 0 {
		return consistencyErrf(idx.name, ErrRevisionMismatch, "malformed revision %d", rev)
	}
	idx.tree.Clear(false)
	idx.nullItems = nil
	idx.revision = rev
	return nil
}

// Len returns the number of IDs in the index, nulls included.
func (idx *EqualityIndex) Len() int {
	n := len(idx.nullItems)
	idx.tree.Ascend(func(b *indexBucket) bool {
		n += len(b.ids)
		return true
	})
	return n
}

type IndexStats struct {
	Buckets  int   `json:"buckets"`
	Entries  int   `json:"entries"`
	Nulls    int   `json:"nulls"`
	Revision int64 `json:"revision"`
}

func (idx *EqualityIndex) Stats() IndexStats {
	return IndexStats{
		Buckets:  idx.tree.Len(),
		Entries:  idx.Len(),
		Nulls:    len(idx.nullItems),
		Revision: idx.revision,
	}
}

// Buckets yields each key with a copy of its IDs, in key order.
func (idx *EqualityIndex) Buckets() iter.Seq2[any, []ID] {
	return func(yield func(any, []ID) bool) {
		idx.tree.Ascend(func(b *indexBucket) bool {
			return yield(b.key, slices.Clone(b.ids))
		})
	}
}

// sameKey reports whether a and b are filed under the same key.
func (idx *EqualityIndex) sameKey(a, b any) bool {
	return idx.keysEqual(idx.Key(a), idx.Key(b))
}
