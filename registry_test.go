package odm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Define(t *testing.T) {
	reg := NewRegistry(Options{Adapter: setupStore(t)})
	m, err := reg.Define("Person", personSchema())
	require.NoError(t, err)
	require.Same(t, reg.Types(), m.Types())
	require.Equal(t, reg.Adapter(), m.Adapter())

	got, ok := reg.Model("Person")
	require.True(t, ok)
	require.Same(t, m, got)

	_, err = reg.Define("Student", SchemaDef{Extends: "Nobody"})
	var e *DefinitionError
	require.ErrorAs(t, err, &e)
	_, ok = reg.Model("Student")
	require.False(t, ok)

	student, err := reg.Define("Student", SchemaDef{
		Extends: "Person",
		Props:   map[string]*PropDef{"school": {}},
	})
	require.NoError(t, err)
	require.Same(t, m, student.Base())
	deepEqual(t, reg.Names(), []string{"Person", "Student"})

	reg.Remove("Student")
	deepEqual(t, reg.Names(), []string{"Person"})
}

func TestRegistry_Redefine(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(Options{Adapter: setupStore(t)})
	m1 := must(reg.Define("Person", personSchema()))
	savePeople(t, m1, person{"Alice", nil, 42}, person{"Bob", nil, 23})

	def := personSchema()
	def.Props["name"].Index = IndexDefs{{Op: OpEq}}
	m2 := must(reg.Define("Person", def))
	require.NotSame(t, m1, m2)
	got, _ := reg.Model("Person")
	require.Same(t, m2, got)

	found := must(m2.Find(ctx, Eq("name", "Bob"), FindOptions{}))
	deepEqual(t, ages(found), []any{int64(23)})
	deepEqual(t, m2.Index("name").Len(), 2)
}

func TestRegistry_DefineAll(t *testing.T) {
	reg := NewRegistry(Options{})
	err := reg.DefineAll(map[string]SchemaDef{
		"C": {Extends: "B"},
		"B": {Extends: "A", Props: map[string]*PropDef{"b": {}}},
		"A": {Props: map[string]*PropDef{"a": {}}},
	})
	require.NoError(t, err)
	c, _ := reg.Model("C")
	deepEqual(t, c.Schema().PropNames(), []string{"a", "b"})

	err = NewRegistry(Options{}).DefineAll(map[string]SchemaDef{
		"X": {Extends: "Y"},
		"Y": {Extends: "X"},
	})
	require.ErrorContains(t, err, "inheritance cycle")
}
