package odm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
)

type recordState int

const (
	stateNew recordState = iota
	stateUnloaded
	stateLoading
	stateLoaded
	stateFailed
	stateRemoved
)

var stateNames = [...]string{"new", "unloaded", "loading", "loaded", "failed", "removed"}

func (s recordState) String() string {
	return stateNames[s]
}

// Record is one instance of a model. A Record is not safe for concurrent use.
type Record struct {
	model *Model
	id    ID
	state recordState

	props     map[string]any
	persisted map[string]any // values as last loaded or saved
	changed   map[string]bool
	loadErr   error
}

func (m *Model) newRecord(id ID, state recordState) *Record {
	return &Record{
		model:   m,
		id:      id,
		state:   state,
		props:   make(map[string]any),
		changed: make(map[string]bool),
	}
}

func (r *Record) Model() *Model {
	return r.model
}

// ID is zero until the record is saved.
func (r *Record) ID() ID {
	return r.id
}

func (r *Record) Key() string {
	return RecordKey(r.model.name, r.id)
}

func (r *Record) IsNew() bool {
	return r.id.IsZero()
}

func (r *Record) IsLoaded() bool {
	return r.state == stateLoaded
}

func (r *Record) IsRemoved() bool {
	return r.state == stateRemoved
}

// LoadErr returns the error of the last failed load.
func (r *Record) LoadErr() error {
	return r.loadErr
}

func (r *Record) String() string {
	if r.id.IsZero() {
		return r.model.name + "/<new>"
	}
	return r.model.name + "/" + r.id.String()
}

// Get returns a property or computed property value.
func (r *Record) Get(name string) any {
	if cd, ok := r.model.schema.computed[name]; ok {
		return cd.Get(r)
	}
	return r.props[name]
}

// Set assigns a property, coercing it immediately, or calls a computed
// property's setter.
func (r *Record) Set(name string, value any) error {
	if cd, ok := r.model.schema.computed[name]; ok {
		if cd.Set == nil {
			return fmt.Errorf("%s: computed property %q is read-only", r.model.name, name)
		}
		return cd.Set(r, value)
	}
	cp, ok := r.model.propIndex[name]
	if !ok {
		return fmt.Errorf("%s: unknown property %q", r.model.name, name)
	}
	r.props[name] = cp.coerce(value)
	r.changed[name] = true
	return nil
}

// Call invokes a schema method.
func (r *Record) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := r.model.schema.methods[name]
	if !ok {
		return nil, fmt.Errorf("%s: unknown method %q", r.model.name, name)
	}
	return fn(ctx, r, args...)
}

// Props returns a copy of the in-memory property values.
func (r *Record) Props() map[string]any {
	return maps.Clone(r.props)
}

// Changed lists properties set since the last load or save.
func (r *Record) Changed() []string {
	return slices.Sorted(maps.Keys(r.changed))
}

// ToMap returns the serialized properties plus "$id".
func (r *Record) ToMap() map[string]any {
	out := r.model.serializeAll(r.props)
	if !r.id.IsZero() {
		out["$id"] = r.id.String()
	}
	return out
}

func (r *Record) runHooks(ctx context.Context, name string) error {
	for _, h := range r.model.schema.hooks[name] {
		if err := h(ctx, r); err != nil {
			return fmt.Errorf("%s: %s hook: %w", r, name, err)
		}
	}
	return nil
}

// Load reads the record from storage, replacing in-memory values.
func (r *Record) Load(ctx context.Context) error {
	m := r.model
	if r.id.IsZero() {
		return fmt.Errorf("%s: cannot load a record that was never saved", m.name)
	}
	if err := m.requireAdapter(); err != nil {
		return err
	}
	r.state = stateLoading
	doc, err := m.adapter.Read(ctx, r.Key())
	if err != nil {
		r.state, r.loadErr = stateFailed, err
		return fmt.Errorf("%s: load: %w", m.name, err)
	}
	r.props = m.deserializeAll(doc)
	r.persisted = maps.Clone(r.props)
	clear(r.changed)
	r.state, r.loadErr = stateLoaded, nil
	m.metrics.loads.Inc()
	return r.runHooks(ctx, HookAfterLoad)
}

// Save validates and persists the record, keeping every index in step.
//
// Saving a record that has an ID but was never loaded fails with
// ErrNotLoaded. Saving a loaded record without changes does nothing.
func (r *Record) Save(ctx context.Context) error {
	m := r.model
	if r.state == stateRemoved {
		return fmt.Errorf("%s: %w", r, ErrRemoved)
	}
	if err := m.requireAdapter(); err != nil {
		return err
	}
	if err := m.IndexLoaded(ctx); err != nil {
		return err
	}
	if r.id.IsZero() {
		return r.saveNew(ctx)
	}
	if r.state != stateLoaded {
		return fmt.Errorf("%s: %w", r, ErrNotLoaded)
	}
	if len(r.changed) == 0 {
		return nil
	}
	return r.saveExisting(ctx)
}

func (r *Record) prepare(ctx context.Context) (map[string]any, Document, error) {
	m := r.model
	if err := r.runHooks(ctx, HookBeforeSave); err != nil {
		return nil, nil, err
	}
	props := m.coerceAll(r.props)
	if vs := m.validateAll(props); len(vs) > 0 {
		return nil, nil, &ValidationError{Model: m.name, ID: r.id, Violations: vs}
	}
	return props, m.serializeAll(props), nil
}

func (r *Record) saveNew(ctx context.Context) error {
	m := r.model
	props, doc, err := r.prepare(ctx)
	if err != nil {
		return err
	}
	key, err := m.adapter.Create(ctx, recordKeyTemplate(m.name), doc)
	if err != nil {
		return fmt.Errorf("%s: create: %w", m.name, err)
	}
	_, id, err := ParseRecordKey(key)
	if err != nil {
		return fmt.Errorf("%s: create: %w", m.name, err)
	}
	r.id = id
	r.commit(props)

	m.mu.Lock()
	for _, d := range m.indices {
		if err = d.add(id, props[d.prop], false); err != nil {
			break
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.metrics.saves.Inc()
	m.logger.Debug("odm: created", idAttr(id))
	return r.runHooks(ctx, HookAfterSave)
}

func (r *Record) saveExisting(ctx context.Context) error {
	m := r.model
	props, doc, err := r.prepare(ctx)
	if err != nil {
		return err
	}
	if maps.Equal(doc, m.serializeAll(r.persisted)) {
		r.props = props
		clear(r.changed)
		return nil
	}
	if err := m.adapter.Write(ctx, r.Key(), doc); err != nil {
		return fmt.Errorf("%s: write: %w", m.name, err)
	}
	old := r.persisted
	r.commit(props)

	m.mu.Lock()
	for _, d := range m.indices {
		if d.index.sameKey(old[d.prop], props[d.prop]) {
			continue
		}
		if err = d.update(r.id, old[d.prop], props[d.prop]); err != nil {
			break
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.metrics.saves.Inc()
	m.logger.Debug("odm: updated", idAttr(r.id))
	return r.runHooks(ctx, HookAfterSave)
}

func (r *Record) commit(props map[string]any) {
	r.props = props
	r.persisted = maps.Clone(props)
	clear(r.changed)
	r.state, r.loadErr = stateLoaded, nil
}

// Remove deletes the record from storage and from every index.
func (r *Record) Remove(ctx context.Context) error {
	m := r.model
	if r.id.IsZero() {
		return fmt.Errorf("%s: cannot remove a record that was never saved", m.name)
	}
	if r.state == stateRemoved {
		return fmt.Errorf("%s: %w", r, ErrRemoved)
	}
	if err := m.requireAdapter(); err != nil {
		return err
	}
	if err := m.IndexLoaded(ctx); err != nil {
		return err
	}
	if err := r.runHooks(ctx, HookBeforeRemove); err != nil {
		return err
	}
	if len(m.indices) > 0 && r.persisted == nil {
		if err := r.Load(ctx); err != nil {
			return err
		}
	}
	if err := m.adapter.Remove(ctx, r.Key()); err != nil {
		return fmt.Errorf("%s: remove: %w", m.name, err)
	}

	var err error
	m.mu.Lock()
	for _, d := range m.indices {
		var ok bool
		ok, err = d.remove(r.id, r.persisted[d.prop])
		if err != nil {
			break
		}
		if !ok {
			m.logger.Warn("odm: removed record missing from index", idAttr(r.id), "index", d.index.Name())
		}
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	r.state = stateRemoved
	m.metrics.removes.Inc()
	m.logger.Debug("odm: removed", idAttr(r.id))
	return r.runHooks(ctx, HookAfterRemove)
}

// IsValidationError reports whether err rejected a save for invalid values.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
