package odm

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry holds models by name over one adapter and one type registry.
// Defining a model under an existing name replaces it; the new model rebuilds
// its indices from storage on first use.
type Registry struct {
	types    *TypeRegistry
	adapter  Adapter
	logger   *slog.Logger
	reducers map[string]func(any) any
	metrics  *metrics.Set
	models   *xsync.MapOf[string, *Model]
}

// NewRegistry creates a registry. opt.Base is ignored; use SchemaDef.Extends.
func NewRegistry(opt Options) *Registry {
	if opt.Types == nil {
		opt.Types = NewTypeRegistry()
	}
	if opt.Logger == nil {
		opt.Logger = discardLogger()
	}
	return &Registry{
		types:    opt.Types,
		adapter:  opt.Adapter,
		logger:   opt.Logger,
		reducers: opt.Reducers,
		metrics:  opt.Metrics,
		models:   xsync.NewMapOf[string, *Model](),
	}
}

func (reg *Registry) Types() *TypeRegistry {
	return reg.types
}

func (reg *Registry) Adapter() Adapter {
	return reg.adapter
}

// Define compiles def and registers it under name.
func (reg *Registry) Define(name string, def SchemaDef) (*Model, error) {
	opt := Options{
		Types:    reg.types,
		Adapter:  reg.adapter,
		Logger:   reg.logger,
		Reducers: reg.reducers,
		Metrics:  reg.metrics,
	}
	if def.Extends != "" {
		base, ok := reg.models.Load(def.Extends)
		if !ok {
			return nil, &DefinitionError{Model: name, Errs: []error{fmt.Errorf("invalid base model: %q is not defined", def.Extends)}}
		}
		opt.Base = base
	}
	m, err := Define(name, def, opt)
	if err != nil {
		return nil, err
	}
	if _, replaced := reg.models.LoadAndStore(name, m); replaced {
		reg.logger.Debug("odm: model redefined", "model", name)
	}
	return m, nil
}

// DefineAll defines schemas in dependency order, so a schema may extend any
// other in the set regardless of map order.
func (reg *Registry) DefineAll(defs map[string]SchemaDef) error {
	done := make(map[string]bool, len(defs))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		if done[name] {
			return nil
		}
		if slices.Contains(path, name) {
			return &DefinitionError{Model: name, Errs: []error{fmt.Errorf("inheritance cycle %v", append(path, name))}}
		}
		def := defs[name]
		if _, ok := defs[def.Extends]; ok && def.Extends != "" {
			if err := visit(def.Extends, append(path, name)); err != nil {
				return err
			}
		}
		if _, err := reg.Define(name, def); err != nil {
			return err
		}
		done[name] = true
		return nil
	}
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func (reg *Registry) Model(name string) (*Model, bool) {
	return reg.models.Load(name)
}

// Names lists registered model names in sorted order.
func (reg *Registry) Names() []string {
	var names []string
	reg.models.Range(func(name string, _ *Model) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

func (reg *Registry) Remove(name string) {
	reg.models.Delete(name)
}
