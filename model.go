package odm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
)

var errNoAdapter = errors.New("model has no adapter")

// Model is a compiled schema bound to an adapter. It owns one EqualityIndex
// per declared index. Create models with Define or Registry.Define.
type Model struct {
	name            string
	schema          *Schema
	types           *TypeRegistry
	base            *Model
	adapter         Adapter
	logger          *slog.Logger
	loadConcurrency int
	metrics         *modelMetrics

	props     []*compiledProp
	propIndex map[string]*compiledProp

	coerceAll      func(map[string]any) map[string]any
	validateAll    func(map[string]any) Violations
	serializeAll   func(map[string]any) map[string]any
	deserializeAll func(map[string]any) map[string]any

	// mu serializes index mutations and revision bookkeeping.
	mu      sync.Mutex
	indices []*indexDescriptor

	buildMu sync.Mutex
	built   bool
}

// indexDescriptor ties an index to the property it covers. rev is the
// revision this model expects the index to be at.
type indexDescriptor struct {
	prop  string
	op    Op
	index *EqualityIndex
	rev   int64
}

func (d *indexDescriptor) add(id ID, value any, ignoreDuplicates bool) error {
	next := d.rev + 1
	if err := d.index.Add(id, value, next, ignoreDuplicates); err != nil {
		return err
	}
	d.rev = next
	return nil
}

func (d *indexDescriptor) update(id ID, oldValue, newValue any) error {
	next := d.rev + 1
	if _, err := d.index.Update(id, oldValue, newValue, next, false); err != nil {
		return err
	}
	d.rev = next
	return nil
}

// remove drops id from the bucket of value, falling back to a full scan when
// it isn't there.
func (d *indexDescriptor) remove(id ID, value any) (bool, error) {
	next := d.rev + 1
	ok, err := d.index.RemoveValue(id, value, next)
	if err != nil {
		return false, err
	}
	d.rev = next
	if ok {
		return true, nil
	}
	next = d.rev + 1
	ok, err = d.index.Remove(id, next)
	if err != nil {
		return false, err
	}
	d.rev = next
	return ok, nil
}

func (d *indexDescriptor) clear() error {
	if err := d.index.Clear(0); err != nil {
		return err
	}
	d.rev = 0
	return nil
}

func (d *indexDescriptor) between(opt BetweenOptions) (iter.Seq2[any, ID], error) {
	return d.index.FindBetween(opt, d.rev)
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) Schema() *Schema {
	return m.schema
}

func (m *Model) Base() *Model {
	return m.base
}

func (m *Model) Adapter() Adapter {
	return m.adapter
}

func (m *Model) Types() *TypeRegistry {
	return m.types
}

func (m *Model) requireAdapter() error {
	if m.adapter == nil {
		return fmt.Errorf("%s: %w", m.name, errNoAdapter)
	}
	return nil
}

// Index returns the first index covering prop, or nil.
func (m *Model) Index(prop string) *EqualityIndex {
	if d := m.indexFor(prop); d != nil {
		return d.index
	}
	return nil
}

func (m *Model) indexFor(prop string) *indexDescriptor {
	for _, d := range m.indices {
		if d.prop == prop {
			return d
		}
	}
	return nil
}

// IndexInfo describes one index of a model.
type IndexInfo struct {
	Prop  string     `json:"prop"`
	Op    Op         `json:"op"`
	Name  string     `json:"name"`
	Stats IndexStats `json:"stats"`
}

func (m *Model) Indices() []IndexInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]IndexInfo, len(m.indices))
	for i, d := range m.indices {
		infos[i] = IndexInfo{Prop: d.prop, Op: d.op, Name: d.index.Name(), Stats: d.index.Stats()}
	}
	return infos
}

// New returns an unsaved record. Properties missing from props get their
// defaults.
func (m *Model) New(props map[string]any) *Record {
	r := m.newRecord(ZeroID, stateNew)
	r.props = m.coerceAll(props)
	for name := range props {
		if _, ok := m.propIndex[name]; ok {
			r.changed[name] = true
		}
	}
	return r
}

// Instance returns an unloaded handle for an existing record.
func (m *Model) Instance(id ID) *Record {
	return m.newRecord(id, stateUnloaded)
}

// Get loads the record with the given id.
func (m *Model) Get(ctx context.Context, id ID) (*Record, error) {
	r := m.Instance(id)
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// IndexLoaded populates every index from storage on first use. Later calls
// return immediately; a failed build is retried on the next call.
func (m *Model) IndexLoaded(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	if m.built {
		return nil
	}
	if err := m.buildIndices(ctx); err != nil {
		return err
	}
	m.built = true
	return nil
}

// Rebuild repopulates every index from storage.
func (m *Model) Rebuild(ctx context.Context) error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	m.built = false
	if err := m.buildIndices(ctx); err != nil {
		return err
	}
	m.built = true
	return nil
}

func (m *Model) buildIndices(ctx context.Context) error {
	if len(m.indices) == 0 {
		return nil
	}
	if err := m.requireAdapter(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.indices {
		if err := d.clear(); err != nil {
			return err
		}
	}

	var n int
	opt := KeyStreamOptions{Prefix: itemsPrefix(m.name), MaxDepth: 1, Separator: "/"}
	for key, err := range m.adapter.KeyStream(ctx, opt) {
		if err != nil {
			return fmt.Errorf("%s: index build: %w", m.name, err)
		}
		_, id, err := ParseRecordKey(key)
		if err != nil {
			m.logger.Warn("odm: skipping foreign key", "key", key, "err", err)
			continue
		}
		doc, err := m.adapter.Read(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return fmt.Errorf("%s: index build: %w", m.name, err)
		}
		for _, d := range m.indices {
			v := m.propIndex[d.prop].deserialize(doc[d.prop])
			if isInvalid(v) {
				m.logger.Warn("odm: indexing unreadable value as null", idAttr(id), "prop", d.prop)
				v = nil
			}
			if err := d.add(id, v, true); err != nil {
				return err
			}
		}
		n++
	}
	m.metrics.rebuilds.Inc()
	m.logger.Debug("odm: indices built", "records", n, "indices", len(m.indices))
	return nil
}

// Stats summarizes the model's indices.
type Stats struct {
	Model   string      `json:"model"`
	Props   int         `json:"props"`
	Indices []IndexInfo `json:"indices"`
}

func (m *Model) Stats() Stats {
	return Stats{Model: m.name, Props: len(m.props), Indices: m.Indices()}
}
