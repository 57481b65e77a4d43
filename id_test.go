package odm

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	a, b := MustNewID(), MustNewID()
	require.NotEqual(t, a, b)
	require.False(t, a.IsZero())
	require.True(t, ZeroID.IsZero())

	u := uuid.UUID(a)
	deepEqual(t, u.Version(), uuid.Version(4))
	deepEqual(t, u.Variant(), uuid.RFC4122)
}

func TestNormalizeID(t *testing.T) {
	id := MustNewID()
	s := id.String()
	require.Len(t, s, 36)

	for _, v := range []any{id, &id, uuid.UUID(id), id.Bytes(), s} {
		got, err := NormalizeID(v)
		require.NoError(t, err, "%T", v)
		deepEqual(t, got, id)
	}

	bad := []any{
		nil,
		42,
		"",
		"not-an-id",
		s[:35],
		s[:8] + "x" + s[9:],
		"zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz",
		[]byte{1, 2, 3},
		(*ID)(nil),
	}
	for _, v := range bad {
		_, err := NormalizeID(v)
		var e *IDTypeError
		if !errors.As(err, &e) {
			t.Errorf("NormalizeID(%#v): err = %T, wanted *IDTypeError", v, err)
		}
		require.False(t, IsValidID(v))
	}
}

func TestFormatID(t *testing.T) {
	id := MustNewID()
	s, err := FormatID(append(id.Bytes(), 0xFF))
	require.NoError(t, err)
	deepEqual(t, s, id.String())

	_, err = FormatID([]byte{1})
	require.Error(t, err)
}

func TestIDText(t *testing.T) {
	id := MustNewID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var back ID
	require.NoError(t, back.UnmarshalText(text))
	deepEqual(t, back, id)
	require.Error(t, back.UnmarshalText([]byte("garbage")))
}

func TestCompareIDs(t *testing.T) {
	a := ID{1}
	b := ID{2}
	deepEqual(t, compareIDs(a, b), -1)
	deepEqual(t, compareIDs(b, a), 1)
	deepEqual(t, compareIDs(a, a), 0)
}
