package odm

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/VictoriaMetrics/metrics"
)

// Options configure Define.
type Options struct {
	// Types resolves property types; nil means a fresh NewTypeRegistry.
	Types *TypeRegistry

	// Adapter stores records; nil inherits the base model's.
	Adapter Adapter

	// Base is the model whose schema this one extends.
	Base *Model

	Logger *slog.Logger

	// Reducers adds named index reducers next to "lower", "trim" and "day".
	Reducers map[string]func(any) any

	// Metrics receives the model's counters; nil uses the global set.
	Metrics *metrics.Set

	// LoadConcurrency bounds parallel record loads in Find; defaults to 16.
	LoadConcurrency int
}

const defaultLoadConcurrency = 16

// compiledProp is one property's handler logic bound to its definition.
type compiledProp struct {
	name        string
	def         *PropDef
	handler     TypeHandler
	coerce      func(any) any
	validate    func(any, *Violations)
	serialize   func(any) any
	deserialize func(any) any
}

type propStep func(in, out map[string]any)

// Define compiles a model. All problems found in def are reported together
// in one *DefinitionError; on error no Model is returned.
func Define(name string, def SchemaDef, opt Options) (*Model, error) {
	if opt.Types == nil {
		if opt.Base != nil && opt.Base.types != nil {
			opt.Types = opt.Base.types
		} else {
			opt.Types = NewTypeRegistry()
		}
	}
	if opt.Logger == nil {
		opt.Logger = discardLogger()
	}
	if opt.LoadConcurrency <= 0 {
		opt.LoadConcurrency = defaultLoadConcurrency
	}

	c := &compiler{model: name, opt: opt}
	schema := c.compileSchema(def)
	if len(c.errs) > 0 {
		return nil, &DefinitionError{Model: name, Errs: c.errs}
	}

	m := &Model{
		name:            name,
		schema:          schema,
		types:           opt.Types,
		base:            opt.Base,
		adapter:         opt.Adapter,
		logger:          opt.Logger.With("model", name),
		loadConcurrency: opt.LoadConcurrency,
		metrics:         newModelMetrics(opt.Metrics, name),
	}
	if m.adapter == nil && opt.Base != nil {
		m.adapter = opt.Base.adapter
	}
	c.compileProps(m)
	c.compileIndices(m)
	if len(c.errs) > 0 {
		return nil, &DefinitionError{Model: name, Errs: c.errs}
	}
	m.logger.Debug("odm: model defined", "props", len(m.props), "indices", len(m.indices))
	return m, nil
}

type compiler struct {
	model string
	opt   Options
	errs  []error
}

func (c *compiler) errorf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

func (c *compiler) compileSchema(def SchemaDef) *Schema {
	if !isIdentifier(c.model) {
		c.errorf("invalid model name %q", c.model)
	}
	if c.opt.Base != nil && c.opt.Base.schema == nil {
		c.errorf("invalid base model: not compiled by Define")
	}
	if c.opt.Base != nil && c.opt.Base.types != nil && c.opt.Base.types != c.opt.Types {
		c.errorf("invalid base model %s: uses a different type registry", c.opt.Base.name)
	}

	own := &Schema{
		props:    make(map[string]*PropDef, len(def.Props)),
		computed: make(map[string]ComputedDef, len(def.Computed)),
		methods:  make(map[string]Method, len(def.Methods)),
		hooks:    make(map[string][]Hook, len(def.Hooks)),
	}

	seen := make(map[string]string)
	claim := func(name, section string) bool {
		if prev, ok := seen[name]; ok {
			c.errorf("duplicate name %q in %s and %s", name, prev, section)
			return false
		}
		seen[name] = section
		if name == "" {
			c.errorf("empty %s name", section)
			return false
		}
		if isReservedName(name) {
			c.errorf("reserved name %q in %s", name, section)
			return false
		}
		return true
	}

	for _, name := range slices.Sorted(maps.Keys(def.Props)) {
		if !claim(name, "props") {
			continue
		}
		pd := def.Props[name]
		if pd == nil {
			pd = &PropDef{}
		}
		pd = pd.clone()
		if pd.Type == "" {
			pd.Type = "string"
		}
		h, ok := c.opt.Types.Lookup(pd.Type)
		if !ok {
			c.errorf("property %q: unknown type %q", name, pd.Type)
			continue
		}
		pd.Type = h.Name()
		for _, err := range h.CheckDefinition(pd) {
			c.errorf("property %q: %w", name, err)
		}
		own.props[name] = pd
	}
	for _, name := range slices.Sorted(maps.Keys(def.Computed)) {
		if !claim(name, "computed") {
			continue
		}
		cd := def.Computed[name]
		if cd.Get == nil {
			c.errorf("computed %q: missing getter", name)
			continue
		}
		own.computed[name] = cd
	}
	for _, name := range slices.Sorted(maps.Keys(def.Methods)) {
		if !claim(name, "methods") {
			continue
		}
		if def.Methods[name] == nil {
			c.errorf("method %q: nil function", name)
			continue
		}
		own.methods[name] = def.Methods[name]
	}
	for _, name := range slices.Sorted(maps.Keys(def.Hooks)) {
		if !slices.Contains(knownHooks, name) {
			c.errorf("unknown hook %q", name)
			continue
		}
		hooks := slices.Clone(def.Hooks[name])
		if slices.ContainsFunc(hooks, func(h Hook) bool { return h == nil }) {
			c.errorf("hook %q: nil function", name)
			continue
		}
		own.hooks[name] = hooks
	}

	schema := c.merge(own)

	for _, name := range slices.Sorted(maps.Keys(def.Indices)) {
		pd, ok := schema.props[name]
		if !ok {
			c.errorf("index on unknown property %q", name)
			continue
		}
		if _, inherited := own.props[name]; !inherited {
			pd = pd.clone()
			schema.props[name] = pd
		}
		pd.Index = append(pd.Index, def.Indices[name]...)
	}
	for _, name := range schema.propNames {
		c.checkIndexDefs(name, schema.props[name])
	}
	return schema
}

// merge overlays own on the base schema, section by section. A name defined
// by own in any section hides the base entry in every section.
func (c *compiler) merge(own *Schema) *Schema {
	out := &Schema{
		props:    make(map[string]*PropDef),
		computed: make(map[string]ComputedDef),
		methods:  make(map[string]Method),
		hooks:    make(map[string][]Hook),
	}
	if base := c.opt.Base; base != nil && base.schema != nil {
		bs := base.schema
		for name, pd := range bs.props {
			if !own.Has(name) {
				out.props[name] = pd
			}
		}
		for name, cd := range bs.computed {
			if !own.Has(name) {
				out.computed[name] = cd
			}
		}
		for name, fn := range bs.methods {
			if !own.Has(name) {
				out.methods[name] = fn
			}
		}
		maps.Copy(out.hooks, bs.hooks)
	}
	maps.Copy(out.props, own.props)
	maps.Copy(out.computed, own.computed)
	maps.Copy(out.methods, own.methods)
	maps.Copy(out.hooks, own.hooks)
	out.propNames = slices.Sorted(maps.Keys(out.props))
	return out
}

func (c *compiler) checkIndexDefs(prop string, pd *PropDef) {
	seen := make(map[Op]bool, len(pd.Index))
	for i := range pd.Index {
		ix := &pd.Index[i]
		if ix.Op == "" {
			ix.Op = OpEq
		}
		if _, ok := indexOps[ix.Op]; !ok {
			c.errorf("property %q: unknown index type %q", prop, ix.Op)
			continue
		}
		if seen[ix.Op] {
			c.errorf("property %q: duplicate index type %q", prop, ix.Op)
			continue
		}
		seen[ix.Op] = true
		if ix.ReducerName != "" && ix.Reducer == nil {
			r := c.opt.Reducers[ix.ReducerName]
			if r == nil {
				r = builtinReducers[ix.ReducerName]
			}
			if r == nil {
				c.errorf("property %q: unknown index reducer %q", prop, ix.ReducerName)
				continue
			}
			ix.Reducer = r
		}
	}
}

// compileProps binds every property's handler to its definition and composes
// the per-model coerce/validate/serialize/deserialize passes.
func (c *compiler) compileProps(m *Model) {
	m.props = make([]*compiledProp, 0, len(m.schema.propNames))
	m.propIndex = make(map[string]*compiledProp, len(m.schema.propNames))
	for _, name := range m.schema.propNames {
		def := m.schema.props[name]
		h, ok := m.types.Lookup(def.Type)
		if !ok {
			c.errorf("property %q: unknown type %q", name, def.Type)
			continue
		}
		cp := &compiledProp{
			name:    name,
			def:     def,
			handler: h,
			coerce: func(v any) any {
				return h.Coerce(v, def)
			},
			validate: func(v any, out *Violations) {
				h.Validate(name, v, def, out)
			},
			serialize:   h.Serialize,
			deserialize: h.Deserialize,
		}
		m.props = append(m.props, cp)
		m.propIndex[name] = cp
	}

	coerceSteps := make([]propStep, len(m.props))
	serializeSteps := make([]propStep, len(m.props))
	deserializeSteps := make([]propStep, len(m.props))
	validateSteps := make([]func(map[string]any, *Violations), len(m.props))
	for i, cp := range m.props {
		name := cp.name
		coerce, validate, ser, deser := cp.coerce, cp.validate, cp.serialize, cp.deserialize
		coerceSteps[i] = func(in, out map[string]any) {
			v, ok := in[name]
			if !ok {
				v = DefaultValue
			}
			out[name] = coerce(v)
		}
		validateSteps[i] = func(in map[string]any, out *Violations) {
			validate(in[name], out)
		}
		serializeSteps[i] = func(in, out map[string]any) {
			out[name] = ser(in[name])
		}
		deserializeSteps[i] = func(in, out map[string]any) {
			out[name] = deser(in[name])
		}
	}
	m.coerceAll = runSteps(coerceSteps)
	m.serializeAll = runSteps(serializeSteps)
	m.deserializeAll = runSteps(deserializeSteps)
	m.validateAll = func(in map[string]any) Violations {
		var vs Violations
		for _, step := range validateSteps {
			step(in, &vs)
		}
		return vs
	}
}

func runSteps(steps []propStep) func(map[string]any) map[string]any {
	return func(in map[string]any) map[string]any {
		out := make(map[string]any, len(steps))
		for _, step := range steps {
			step(in, out)
		}
		return out
	}
}

func (c *compiler) compileIndices(m *Model) {
	for _, cp := range m.props {
		for _, ix := range cp.def.Index {
			if !indexOps[ix.Op] {
				continue
			}
			h, userReducer := cp.handler, ix.Reducer
			reducer := func(v any) any {
				if userReducer != nil {
					v = userReducer(v)
				}
				return h.IndexKey(v)
			}
			m.indices = append(m.indices, &indexDescriptor{
				prop:  cp.name,
				op:    ix.Op,
				index: NewEqualityIndex(EqualityIndexOptions{
					Name:    m.name + "." + cp.name + ":" + string(ix.Op),
					Reducer: reducer,
				}),
			})
		}
	}
}
