package odm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

func TestCoerceInteger(t *testing.T) {
	h := IntegerType{}
	def := &PropDef{}
	tests := []struct {
		input    any
		expected any
	}{
		{nil, nil},
		{"", nil},
		{42, int64(42)},
		{int8(-3), int64(-3)},
		{uint32(7), int64(7)},
		{" 42 ", int64(42)},
		{"3.9", int64(3)},
		{3.9, int64(3)},
		{-3.9, int64(-3)},
		{true, int64(1)},
		{false, int64(0)},
	}
	for _, tt := range tests {
		deepEqual(t, h.Coerce(tt.input, def), tt.expected)
	}
	for _, bad := range []any{"abc", math.Inf(1), math.NaN(), []int{1}, uint64(math.MaxUint64), "9223372036854775808", float64(1 << 63), -1e19} {
		if v := h.Coerce(bad, def); !isNaN(v) {
			t.Errorf("Coerce(%#v) = %#v, wanted NaN", bad, v)
		}
	}
}

func TestCoerceNumber(t *testing.T) {
	h := NumberType{}
	def := &PropDef{}
	deepEqual(t, h.Coerce(1000, def), any(1000.0))
	deepEqual(t, h.Coerce("1e3", def), any(1000.0))
	deepEqual(t, h.Coerce(float32(0.5), def), any(0.5))
	deepEqual(t, h.Coerce(nil, def), nil)
	require.True(t, isNaN(h.Coerce("x", def)))
	require.True(t, isNaN(h.Coerce(struct{}{}, def)))
}

func TestCoerceBoolean(t *testing.T) {
	h := BooleanType{}
	def := &PropDef{}
	deepEqual(t, h.Coerce("yes", def), any(true))
	deepEqual(t, h.Coerce("OFF", def), any(false))
	deepEqual(t, h.Coerce(0, def), any(false))
	deepEqual(t, h.Coerce(2.5, def), any(true))
	deepEqual(t, h.Coerce("maybe", def), nil)
	deepEqual(t, h.Coerce(nil, def), nil)
}

func TestCoerceString(t *testing.T) {
	h := StringType{}
	def := &PropDef{}
	id := MustNewID()
	deepEqual(t, h.Coerce("x", def), any("x"))
	deepEqual(t, h.Coerce(42, def), any("42"))
	deepEqual(t, h.Coerce(1.5, def), any("1.5"))
	deepEqual(t, h.Coerce(true, def), any("true"))
	deepEqual(t, h.Coerce(id, def), any(id.String()))
	deepEqual(t, h.Coerce(nil, def), nil)
	deepEqual(t, h.Coerce(map[string]int{}, def), nil)
}

func TestCoerceUUID(t *testing.T) {
	h := UUIDType{}
	def := &PropDef{}
	id := MustNewID()
	deepEqual(t, h.Coerce(id, def), any(id))
	deepEqual(t, h.Coerce(id.String(), def), any(id))
	deepEqual(t, h.Coerce(" "+upper(id.String())+" ", def), any(id))
	deepEqual(t, h.Coerce("bad", def), nil)
	deepEqual(t, h.Coerce("", def), nil)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

func TestCoerceDate(t *testing.T) {
	h := DateType{}
	def := &PropDef{}
	in := time.Date(2024, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 3600))

	v := h.Coerce(in, def).(time.Time)
	require.Equal(t, time.UTC, v.Location())
	deepEqual(t, v.Nanosecond(), 123000000)
	deepEqual(t, v.Hour(), 2)

	s := h.Serialize(v)
	deepEqual(t, s, any("2024-01-02T02:04:05.123Z"))
	back := h.Deserialize(s).(time.Time)
	require.True(t, back.Equal(v))

	ms := h.Coerce(v.UnixMilli(), def).(time.Time)
	require.True(t, ms.Equal(v))
	deepEqual(t, h.IndexKey(v), any(v.UnixMilli()))

	day := h.Coerce("2024-01-02", def).(time.Time)
	deepEqual(t, day, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	deepEqual(t, h.Coerce("yesterday", def), nil)
	deepEqual(t, h.Coerce(time.Time{}, def), nil)
}

func TestCoerceDefault(t *testing.T) {
	deepEqual(t, IntegerType{}.Coerce(DefaultValue, &PropDef{Default: 7}), any(int64(7)))
	deepEqual(t, IntegerType{}.Coerce(DefaultValue, &PropDef{}), nil)

	n := 0
	def := &PropDef{Default: func() any { n++; return "gen" }}
	deepEqual(t, StringType{}.Coerce(DefaultValue, def), any("gen"))
	deepEqual(t, StringType{}.Coerce(DefaultValue, def), any("gen"))
	deepEqual(t, n, 2)
}

func TestRoundTrip(t *testing.T) {
	id := MustNewID()
	tests := []struct {
		h     TypeHandler
		value any
	}{
		{BooleanType{}, true},
		{BooleanType{}, false},
		{IntegerType{}, int64(-42)},
		{IntegerType{}, int64(math.MaxInt64)},
		{NumberType{}, 3.25},
		{StringType{}, "héllo"},
		{StringType{}, ""},
		{UUIDType{}, id},
		{DateType{}, time.UnixMilli(1700000000123).UTC()},
	}
	for _, tt := range tests {
		t.Run(tt.h.Name(), func(t *testing.T) {
			v := tt.h.Coerce(tt.value, &PropDef{})
			back := tt.h.Deserialize(tt.h.Serialize(v))
			require.True(t, tt.h.Compare(back, v, OpEq), "%#v != %#v", back, v)
			deepEqual(t, tt.h.Sort(back, v), 0)
		})
	}
	for _, h := range []TypeHandler{BooleanType{}, IntegerType{}, NumberType{}, StringType{}, UUIDType{}, DateType{}} {
		deepEqual(t, h.Serialize(nil), nil)
		deepEqual(t, h.Deserialize(nil), nil)
	}
	deepEqual(t, NumberType{}.Serialize(math.NaN()), nil)
}

func TestSortMatchesCompare(t *testing.T) {
	t0 := time.UnixMilli(1700000000000).UTC()
	samples := map[TypeHandler][]any{
		BooleanType{}: {false, true},
		IntegerType{}: {int64(-5), int64(0), int64(3), int64(3), int64(100)},
		NumberType{}:  {-1.5, 0.0, 0.25, 2.0, 1e9},
		StringType{}:  {"", "a", "ab", "b", "Z"},
		UUIDType{}:    {ID{1}, ID{2}, ID{0xFF}},
		DateType{}:    {t0, t0.Add(time.Millisecond), t0.Add(time.Hour)},
	}
	for h, values := range samples {
		for _, a := range values {
			for _, b := range values {
				d := h.Sort(a, b)
				deepEqual(t, d < 0, h.Compare(a, b, OpLt))
				deepEqual(t, d == 0, h.Compare(a, b, OpEq))
				deepEqual(t, d > 0, h.Compare(a, b, OpGt))
				deepEqual(t, d <= 0, h.Compare(a, b, OpLte))
				deepEqual(t, d >= 0, h.Compare(a, b, OpGte))
				deepEqual(t, d != 0, h.Compare(a, b, OpNeq))
			}
			// nulls sort last
			deepEqual(t, h.Sort(a, nil), -1)
			deepEqual(t, h.Sort(nil, a), 1)
		}
		deepEqual(t, h.Sort(nil, nil), 0)
	}
}

func TestNullComparisons(t *testing.T) {
	h := IntegerType{}
	one := int64(1)
	nan := math.NaN()

	require.True(t, h.Compare(nil, nil, OpEq))
	for _, op := range []Op{OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte} {
		require.False(t, h.Compare(nil, nan, op), "null %s NaN", op)
		require.False(t, h.Compare(one, nan, op), "1 %s NaN", op)
	}
	require.True(t, h.Compare(nil, nil, OpLte))
	require.True(t, h.Compare(nil, nil, OpGte))
	require.False(t, h.Compare(nil, nil, OpLt))
	require.False(t, h.Compare(nil, nil, OpNeq))

	for _, op := range []Op{OpEq, OpLt, OpLte, OpGt, OpGte} {
		require.False(t, h.Compare(nil, one, op), "null %s 1", op)
		require.False(t, h.Compare(one, nil, op), "1 %s null", op)
	}
	require.True(t, h.Compare(one, nil, OpNeq))

	require.True(t, h.Compare(nil, nil, OpNull))
	require.True(t, h.Compare(nan, nil, OpNull))
	require.True(t, h.Compare(one, nil, OpNotNull))
	require.True(t, h.Compare(int64(0), nil, OpNot))
	require.True(t, h.Compare(nil, nil, OpNot))
	require.False(t, h.Compare(one, nil, OpNot))
}

func TestCheckDefinition(t *testing.T) {
	def := &PropDef{Min: "5", Max: 10.0}
	require.Empty(t, IntegerType{}.CheckDefinition(def))
	deepEqual(t, def.Min, any(int64(5)))
	deepEqual(t, def.Max, any(int64(10)))

	require.Len(t, IntegerType{}.CheckDefinition(&PropDef{Min: 10, Max: 1}), 1)
	require.Len(t, IntegerType{}.CheckDefinition(&PropDef{Min: "x", Step: -1}), 2)
	require.Len(t, NumberType{}.CheckDefinition(&PropDef{Min: 2.5, Max: 1.5}), 1)
	require.Len(t, StringType{}.CheckDefinition(&PropDef{Pattern: "("}), 1)
	require.Len(t, StringType{}.CheckDefinition(&PropDef{MinLength: 5, MaxLength: 2}), 1)
	require.Len(t, StringType{}.CheckDefinition(&PropDef{Enum: []string{"a"}, Default: "b"}), 1)
	require.Len(t, BooleanType{}.CheckDefinition(&PropDef{Min: 1}), 1)
	require.Len(t, UUIDType{}.CheckDefinition(&PropDef{Default: "nope"}), 1)

	ddef := &PropDef{Min: "2024-01-01"}
	require.Empty(t, DateType{}.CheckDefinition(ddef))
	deepEqual(t, ddef.Min, any(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestValidate(t *testing.T) {
	check := func(h TypeHandler, def *PropDef, value any) *Violations {
		t.Helper()
		require.Empty(t, h.CheckDefinition(def))
		var v Violations
		h.Validate("p", h.Coerce(value, def), def, &v)
		return &v
	}
	rules := func(v *Violations) []string {
		var out []string
		for _, x := range *v {
			out = append(out, x.Rule)
		}
		return out
	}

	deepEqual(t, rules(check(IntegerType{}, &PropDef{Min: 0, Max: 10}, 11)), []string{"max"})
	deepEqual(t, rules(check(IntegerType{}, &PropDef{Min: 0}, -1)), []string{"min"})
	deepEqual(t, rules(check(IntegerType{}, &PropDef{Step: 5, Min: 1}, 7)), []string{"step"})
	require.Empty(t, *check(IntegerType{}, &PropDef{Step: 5, Min: 1}, 11))
	deepEqual(t, rules(check(IntegerType{}, &PropDef{}, "abc")), []string{"type"})
	deepEqual(t, rules(check(IntegerType{}, &PropDef{Required: true}, nil)), []string{"required"})
	require.Empty(t, *check(IntegerType{}, &PropDef{}, nil))

	deepEqual(t, rules(check(NumberType{}, &PropDef{Step: 0.5}, 0.75)), []string{"step"})
	deepEqual(t, rules(check(StringType{}, &PropDef{Required: true}, "")), []string{"required"})
	deepEqual(t, rules(check(StringType{}, &PropDef{MinLength: 3}, "ab")), []string{"minLength"})
	deepEqual(t, rules(check(StringType{}, &PropDef{MaxLength: 2}, "abc")), []string{"maxLength"})
	deepEqual(t, rules(check(StringType{}, &PropDef{Pattern: "^[a-z]+$"}, "A1")), []string{"pattern"})
	deepEqual(t, rules(check(StringType{}, &PropDef{Enum: []string{"x", "y"}}, "z")), []string{"enum"})
	require.Empty(t, *check(StringType{}, &PropDef{Enum: []string{"x", "y"}}, "y"))

	deepEqual(t, rules(check(DateType{}, &PropDef{Max: "2020-01-01"}, "2021-01-01")), []string{"max"})
}

func TestCompareKeys(t *testing.T) {
	ordered := []any{false, true, int64(-1), 0.5, int64(1), 1.5, "a", "b", ID{1}, ID{2}}
	for i, a := range ordered {
		for j, b := range ordered {
			got := compareKeys(a, b)
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("compareKeys(%v, %v) = %d, wanted %d", a, b, got, want)
			}
		}
	}
	deepEqual(t, compareKeys(int64(2), 2.0), 0)
	deepEqual(t, normalizeKey(int32(5)), any(int64(5)))
	deepEqual(t, normalizeKey(uint64(math.MaxUint64)), any(float64(math.MaxUint64)))
	deepEqual(t, normalizeKey([]byte("k")), any("k"))
}

func TestTypeRegistry(t *testing.T) {
	r := NewTypeRegistry()
	deepEqual(t, r.Names(), []string{"boolean", "integer", "number", "date", "string", "uuid"})

	for alias, name := range map[string]string{
		"bool": "boolean", "int": "integer", "double": "number", "datetime": "date",
		"text": "string", "identifier": "uuid", "integer": "integer",
	} {
		h, ok := r.Lookup(alias)
		require.True(t, ok, alias)
		deepEqual(t, h.Name(), name)
	}
	_, ok := r.Lookup("blob")
	require.False(t, ok)

	r.Register(shoutType{}, "loud")
	h, ok := r.Lookup("loud")
	require.True(t, ok)
	deepEqual(t, h.Name(), "string")
	deepEqual(t, h.Coerce("hi", &PropDef{}), any("HI"))
	deepEqual(t, len(r.Names()), 6)
}

type shoutType struct{ StringType }

func (shoutType) Coerce(value any, def *PropDef) any {
	if s, ok := coerceString(value).(string); ok {
		return upper(s)
	}
	return nil
}
