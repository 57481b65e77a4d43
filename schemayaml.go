package odm

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// schemaFile is the layout of a YAML schema file:
//
//	models:
//	  User:
//	    props:
//	      name: {type: string, required: true}
//	      email: {type: string, index: {op: eq, reducer: lower}}
//	      age: {type: integer, min: 0, index: eq}
//	  Admin:
//	    extends: User
//	    props:
//	      level: integer
type schemaFile struct {
	Models map[string]SchemaDef `yaml:"models"`
}

// LoadSchemas reads model definitions from YAML. Computed properties,
// methods and hooks cannot be expressed there; add them before defining.
func LoadSchemas(r io.Reader) (map[string]SchemaDef, error) {
	var f schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if f.Models == nil {
		f.Models = make(map[string]SchemaDef)
	}
	return f.Models, nil
}

// UnmarshalYAML accepts a bare type name as shorthand.
func (def *PropDef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*def = PropDef{Type: node.Value}
		return nil
	}
	type plain PropDef
	return node.Decode((*plain)(def))
}

// UnmarshalYAML accepts an op name, a single {op, reducer} mapping, or a
// list of either.
func (defs *IndexDefs) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		out := make(IndexDefs, 0, len(node.Content))
		for _, item := range node.Content {
			ix, err := decodeIndexDef(item)
			if err != nil {
				return err
			}
			out = append(out, ix)
		}
		*defs = out
		return nil
	default:
		ix, err := decodeIndexDef(node)
		if err != nil {
			return err
		}
		*defs = IndexDefs{ix}
		return nil
	}
}

func decodeIndexDef(node *yaml.Node) (IndexDef, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return IndexDef{Op: Op(node.Value)}, nil
	case yaml.MappingNode:
		var ix IndexDef
		err := node.Decode(&ix)
		return ix, err
	default:
		return IndexDef{}, fmt.Errorf("line %d: index must be an op name or a mapping", node.Line)
	}
}
