/*
Package odm maps typed models onto a key/value store and answers structured
queries over them using in-memory secondary indices.

We implement:

1. Models, compiled from a declarative schema of typed properties, computed
properties, methods and lifecycle hooks. A model may extend another one.

2. Equality indices, ordered maps from property value to record IDs, used for
point lookups, range scans and sorting.

3. Queries, a single filter operation plus offset, limit and sort order,
evaluated as a lazy pipeline of a tester and an optional sorter.

4. A Store adapter over in-memory, Bolt and Badger backends.

# Technical Details

**Keys.**
A record lives under models/<Model>/items/<id>, where id is the canonical
8-4-4-4-12 form of a random 128-bit ID. The value is the record's serialized
properties, msgpack-encoded by default.

**Types.**
Each property has a type handler (boolean, integer, number, date, string,
uuid) that coerces input, validates constraints, serializes, deserializes,
compares and orders values. Coercion never fails: bad input becomes NaN
for numeric kinds and nil otherwise, and validation reports it.

**Indices.**
Indices are not persisted. The first operation on a model scans every stored
record of the model and fills its indices; after that, Save and Remove keep
them in step. Each index carries a revision that every call must quote, so a
caller working from a stale view of the index fails instead of reading or
corrupting it.

**Query strategies.**
Equality, null, not-null and range queries on an indexed property read the
index and load nothing. Comparisons, and queries on unindexed properties,
scan and load every record. Range queries on unindexed properties are
rejected. Sorting by an indexed property merges the matches against the
index order; sorting by an unindexed one buffers all matches.
*/
package odm
