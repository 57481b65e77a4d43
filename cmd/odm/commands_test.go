package main

import (
	"context"
	"strings"
	"testing"

	"github.com/andreyvit/odm"
	"github.com/stretchr/testify/require"
)

const testSchema = `
models:
  User:
    props:
      name: {type: string, required: true}
      age: {type: integer, index: eq}
`

func setupRegistry(t *testing.T) {
	t.Helper()
	store = odm.NewMemoryStore(odm.StoreOptions{})
	defs, err := odm.LoadSchemas(strings.NewReader(testSchema))
	require.NoError(t, err)
	registry = odm.NewRegistry(odm.Options{Adapter: store})
	require.NoError(t, registry.DefineAll(defs))
	t.Cleanup(func() {
		store.Close()
		store, registry = nil, nil
	})
}

func TestPutRecord(t *testing.T) {
	setupRegistry(t)
	ctx := context.Background()
	m, err := lookupModel("User")
	require.NoError(t, err)

	r, err := putRecord(ctx, m, "", map[string]any{"name": "Ann", "age": 30.0})
	require.NoError(t, err)
	require.Equal(t, int64(30), r.Get("age"))

	r, err = putRecord(ctx, m, r.ID().String(), map[string]any{"age": "31"})
	require.NoError(t, err)
	require.Equal(t, "Ann", r.Get("name"))

	found, err := m.Find(ctx, odm.Eq("age", 31), odm.FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = putRecord(ctx, m, "", map[string]any{"age": 1})
	require.True(t, odm.IsValidationError(err))
	_, err = putRecord(ctx, m, "bogus", nil)
	require.Error(t, err)
}

func TestLookupModel(t *testing.T) {
	setupRegistry(t)
	_, err := lookupModel("Nope")
	require.ErrorContains(t, err, "have User")
}
