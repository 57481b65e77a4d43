package odm

import (
	"context"
	"iter"
	"reflect"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"
)

func setupStore(t testing.TB) *Store {
	t.Helper()
	s := NewMemoryStore(StoreOptions{})
	t.Cleanup(func() { s.Close() })
	return s
}

func setupModel(t testing.TB, name string, def SchemaDef, adapter Adapter) *Model {
	t.Helper()
	m, err := Define(name, def, Options{Adapter: adapter, Metrics: metrics.NewSet()})
	require.NoError(t, err)
	return m
}

func personSchema() SchemaDef {
	return SchemaDef{
		Props: map[string]*PropDef{
			"name":          {Type: "string"},
			"nick":          {Type: "string", Index: IndexDefs{{Op: OpEq}}},
			"age":           {Type: "integer", Min: 0, Index: IndexDefs{{Op: OpEq}}},
			"unindexedProp": {Type: "integer"},
		},
	}
}

type person struct {
	name string
	nick any
	age  int
}

func savePeople(t testing.TB, m *Model, people ...person) []*Record {
	t.Helper()
	ctx := context.Background()
	var out []*Record
	for _, p := range people {
		r := m.New(map[string]any{"name": p.name, "nick": p.nick, "age": p.age})
		require.NoError(t, r.Save(ctx))
		out = append(out, r)
	}
	return out
}

func names(recs []*Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r.Get("name")
	}
	return out
}

func collectIDs[K any](seq iter.Seq2[K, ID]) []ID {
	var out []ID
	for _, v := range seq {
		out = append(out, v)
	}
	return out
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

// countingAdapter counts mutating adapter calls.
type countingAdapter struct {
	Adapter
	writes, creates, removes int
}

func (a *countingAdapter) Write(ctx context.Context, key string, doc Document) error {
	a.writes++
	return a.Adapter.Write(ctx, key, doc)
}

func (a *countingAdapter) Create(ctx context.Context, template string, doc Document) (string, error) {
	a.creates++
	return a.Adapter.Create(ctx, template, doc)
}

func (a *countingAdapter) Remove(ctx context.Context, key string) error {
	a.removes++
	return a.Adapter.Remove(ctx, key)
}
