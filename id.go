package odm

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit random record identifier. Equality is byte-wise.
type ID [16]byte

// ZeroID is the identifier of a record that hasn't been saved yet.
var ZeroID ID

const idStringLen = 36

// NewID returns a fresh random identifier with the version 4 / RFC 4122
// variant bits set. It fails only if the system's secure random source fails.
func NewID() (ID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return ZeroID, fmt.Errorf("odm: generating id: %w", err)
	}
	return ID(u), nil
}

// MustNewID is like NewID, but panics on failure.
func MustNewID() ID {
	return must(NewID())
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

func (id ID) IsZero() bool {
	return id == ZeroID
}

func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	v, err := NormalizeID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// FormatID renders the first 16 bytes of b in the canonical 8-4-4-4-12 form.
func FormatID(b []byte) (string, error) {
	if len(b) < len(ZeroID) {
		return "", &IDTypeError{Value: b, Msg: fmt.Sprintf("need 16 bytes, got %d", len(b))}
	}
	return ID(b[:16]).String(), nil
}

// NormalizeID converts raw bytes or a canonical string into an ID.
func NormalizeID(v any) (ID, error) {
	switch v := v.(type) {
	case ID:
		return v, nil
	case *ID:
		if v == nil {
			return ZeroID, &IDTypeError{Value: v, Msg: "nil"}
		}
		return *v, nil
	case uuid.UUID:
		return ID(v), nil
	case []byte:
		if len(v) != len(ZeroID) {
			return ZeroID, &IDTypeError{Value: v, Msg: fmt.Sprintf("need 16 bytes, got %d", len(v))}
		}
		return ID(v), nil
	case string:
		return parseIDString(v)
	default:
		return ZeroID, &IDTypeError{Value: v, Msg: fmt.Sprintf("unsupported type %T", v)}
	}
}

func parseIDString(s string) (ID, error) {
	if len(s) != idStringLen || s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
		return ZeroID, &IDTypeError{Value: s, Msg: "malformed id string"}
	}
	var id ID
	var compact [32]byte
	n := copy(compact[:], s[0:8])
	n += copy(compact[n:], s[9:13])
	n += copy(compact[n:], s[14:18])
	n += copy(compact[n:], s[19:23])
	copy(compact[n:], s[24:36])
	if _, err := hex.Decode(id[:], compact[:]); err != nil {
		return ZeroID, &IDTypeError{Value: s, Msg: "malformed id string"}
	}
	return id, nil
}

// IsValidID reports whether NormalizeID would accept v.
func IsValidID(v any) bool {
	_, err := NormalizeID(v)
	return err == nil
}

func compareIDs(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
