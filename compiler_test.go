package odm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefine_AggregatesErrors(t *testing.T) {
	noop := func(ctx context.Context, r *Record, args ...any) (any, error) { return nil, nil }
	hook := func(ctx context.Context, r *Record) error { return nil }

	m, err := Define("Bad", SchemaDef{
		Props: map[string]*PropDef{
			"constructor": {Type: "string"},
			"$x":          {},
			"a":           {Type: "blob"},
			"b":           {Type: "integer", Min: 5, Max: 1},
			"c":           {Index: IndexDefs{{Op: "like"}}},
			"d":           {Index: IndexDefs{{Op: OpEq}, {Op: OpEq}}},
			"e":           {Index: IndexDefs{{ReducerName: "nope"}}},
		},
		Methods: map[string]Method{"a": noop},
		Hooks:   map[string][]Hook{"beforeFly": {hook}},
		Indices: map[string]IndexDefs{"zzz": {{}}},
	}, Options{})
	require.Nil(t, m)

	var e *DefinitionError
	if !errors.As(err, &e) {
		t.Fatalf("err = %T, wanted *DefinitionError", err)
	}
	deepEqual(t, e.Model, "Bad")
	msg := err.Error()
	for _, want := range []string{
		`reserved name "constructor"`,
		`reserved name "$x"`,
		`unknown type "blob"`,
		`min 5 > max 1`,
		`unknown index type "like"`,
		`duplicate index type "eq"`,
		`unknown index reducer "nope"`,
		`duplicate name "a" in props and methods`,
		`unknown hook "beforeFly"`,
		`index on unknown property "zzz"`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("** error %q does not mention %q", msg, want)
		}
	}
	deepEqual(t, len(e.Errs), 10)
}

func TestDefine_InvalidName(t *testing.T) {
	for _, name := range []string{"", "9lives", "has space", "a-b"} {
		_, err := Define(name, SchemaDef{}, Options{})
		require.Error(t, err, name)
	}
	_, err := Define("Fine_9", SchemaDef{}, Options{})
	require.NoError(t, err)
}

func TestDefine_Defaults(t *testing.T) {
	m := setupModel(t, "Thing", SchemaDef{
		Props: map[string]*PropDef{
			"title": nil,
			"count": {Type: "int", Default: 1, Min: "0"},
			"tags":  {Type: "text", Index: IndexDefs{{}}},
		},
	}, setupStore(t))

	deepEqual(t, m.Schema().PropNames(), []string{"count", "tags", "title"})
	pd, ok := m.Schema().Prop("count")
	require.True(t, ok)
	deepEqual(t, pd.Type, "integer")
	deepEqual(t, pd.Min, any(int64(0)))
	pd, _ = m.Schema().Prop("title")
	deepEqual(t, pd.Type, "string")

	infos := m.Indices()
	require.Len(t, infos, 1)
	deepEqual(t, infos[0].Op, OpEq)
	deepEqual(t, infos[0].Name, "Thing.tags:eq")

	r := m.New(nil)
	deepEqual(t, r.Get("count"), any(int64(1)))
	deepEqual(t, r.Get("title"), nil)
}

func TestDefine_DoesNotMutateInput(t *testing.T) {
	def := SchemaDef{Props: map[string]*PropDef{
		"n": {Type: "integer", Min: "3", Index: IndexDefs{{}}},
	}}
	setupModel(t, "A", def, nil)
	deepEqual(t, def.Props["n"].Min, any("3"))
	deepEqual(t, def.Props["n"].Index[0].Op, Op(""))
}

func TestDefine_Inheritance(t *testing.T) {
	store := setupStore(t)
	greet := func(ctx context.Context, r *Record, args ...any) (any, error) {
		return "hi " + r.Get("name").(string), nil
	}
	var calls []string
	hook := func(tag string) Hook {
		return func(ctx context.Context, r *Record) error {
			calls = append(calls, tag)
			return nil
		}
	}
	base := setupModel(t, "Base", SchemaDef{
		Props: map[string]*PropDef{
			"name": {Type: "string", Required: true},
			"age":  {Type: "integer", Index: IndexDefs{{}}},
			"nick": {Type: "string"},
		},
		Methods: map[string]Method{"greet": greet, "shout": greet},
		Hooks:   map[string][]Hook{HookBeforeSave: {hook("base")}, HookAfterSave: {hook("base-after")}},
	}, store)

	derived, err := Define("Derived", SchemaDef{
		Props: map[string]*PropDef{
			"email": {Type: "string"},
			"age":   {Type: "number"},
			"shout": {Type: "boolean"},
		},
		Hooks:   map[string][]Hook{HookBeforeSave: {hook("derived")}},
		Indices: map[string]IndexDefs{"nick": {{ReducerName: "lower"}}},
	}, Options{Base: base})
	require.NoError(t, err)

	require.Same(t, base, derived.Base())
	require.Equal(t, base.Adapter(), derived.Adapter())
	deepEqual(t, derived.Schema().PropNames(), []string{"age", "email", "name", "nick", "shout"})
	deepEqual(t, derived.Schema().MethodNames(), []string{"greet"})

	pd, _ := derived.Schema().Prop("age")
	deepEqual(t, pd.Type, "number")
	require.Nil(t, derived.Index("age"))
	require.NotNil(t, derived.Index("nick"))
	require.Nil(t, base.Index("nick"))

	ctx := context.Background()
	r := derived.New(map[string]any{"name": "Bob", "nick": "BOBBY"})
	require.NoError(t, r.Save(ctx))
	deepEqual(t, calls, []string{"derived", "base-after"})
	deepEqual(t, must(r.Call(ctx, "greet")), any("hi Bob"))

	found := must(derived.Find(ctx, Eq("nick", "bobby"), FindOptions{}))
	require.Len(t, found, 1)

	err = derived.New(nil).Save(ctx)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.True(t, ve.HasViolation("name", "required"))
}

func TestDefine_BaseRegistryMismatch(t *testing.T) {
	base := setupModel(t, "Base", SchemaDef{}, nil)
	_, err := Define("Derived", SchemaDef{}, Options{Base: base, Types: NewTypeRegistry()})
	require.ErrorContains(t, err, "different type registry")
}

func TestDefine_NamedReducers(t *testing.T) {
	m, err := Define("R", SchemaDef{
		Props: map[string]*PropDef{
			"code": {Index: IndexDefs{{ReducerName: "prefix"}}},
		},
	}, Options{
		Adapter: setupStore(t),
		Reducers: map[string]func(any) any{
			"prefix": func(v any) any { return v.(string)[:1] },
		},
	})
	require.NoError(t, err)
	deepEqual(t, m.Index("code").Key("abc"), any("a"))
}
