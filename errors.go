package odm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned (wrapped) by adapters when a key doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrNotLoaded is returned when saving an existing record that was never loaded.
	ErrNotLoaded = errors.New("record not loaded")

	ErrRevisionMismatch = errors.New("index revision mismatch")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrClosed           = errors.New("storage closed")
	ErrRemoved          = errors.New("record removed")
)

// DataError describes a failure to decode stored bytes.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// StorageError wraps an adapter failure with the operation and key involved.
type StorageError struct {
	Model string
	Op    string
	Key   string
	Err   error
}

func storageErr(model, op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{model, op, key, err}
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Error() string {
	var buf strings.Builder
	if e.Model != "" {
		buf.WriteString(e.Model)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Op)
	if e.Key != "" {
		buf.WriteByte(' ')
		buf.WriteString(e.Key)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Err.Error())
	return buf.String()
}

// DefinitionError collects every problem found while compiling a model.
type DefinitionError struct {
	Model string
	Errs  []error
}

func (e *DefinitionError) Unwrap() []error {
	return e.Errs
}

func (e *DefinitionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "model %s: %d definition error(s)", e.Model, len(e.Errs))
	for _, err := range e.Errs {
		buf.WriteString("\n  - ")
		buf.WriteString(err.Error())
	}
	return buf.String()
}

// Violation is a single failed constraint of a single property.
type Violation struct {
	Prop string
	Rule string
	Msg  string
}

func (v Violation) String() string {
	return v.Prop + ": " + v.Msg
}

// Violations is the collector handed to TypeHandler.Validate.
type Violations []Violation

func (vs *Violations) Add(prop, rule, format string, args ...any) {
	*vs = append(*vs, Violation{Prop: prop, Rule: rule, Msg: fmt.Sprintf(format, args...)})
}

// ValidationError rejects a save; nothing is persisted.
type ValidationError struct {
	Model      string
	ID         ID
	Violations Violations
}

func (e *ValidationError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Model)
	if !e.ID.IsZero() {
		buf.WriteByte('/')
		buf.WriteString(e.ID.String())
	}
	fmt.Fprintf(&buf, ": validation failed (%d)", len(e.Violations))
	for i, v := range e.Violations {
		if i == 0 {
			buf.WriteString(": ")
		} else {
			buf.WriteString("; ")
		}
		buf.WriteString(v.String())
	}
	return buf.String()
}

// HasViolation reports whether prop failed the given rule.
func (e *ValidationError) HasViolation(prop, rule string) bool {
	for _, v := range e.Violations {
		if v.Prop == prop && v.Rule == rule {
			return true
		}
	}
	return false
}

// ConsistencyError means an index and its backing data have diverged, or the
// caller holds a stale revision. It is never recovered from internally.
type ConsistencyError struct {
	Index string
	Msg   string
	Err   error
}

func consistencyErrf(index string, err error, format string, args ...any) error {
	return &ConsistencyError{index, fmt.Sprintf(format, args...), err}
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

func (e *ConsistencyError) Error() string {
	if e.Index == "" {
		return "index: " + e.Msg
	}
	return "index " + e.Index + ": " + e.Msg
}

// UnsupportedQueryError is returned for queries the engine refuses to run,
// e.g. a range query on a property without an index.
type UnsupportedQueryError struct {
	Model string
	Op    string
	Prop  string
	Msg   string
}

func (e *UnsupportedQueryError) Error() string {
	return fmt.Sprintf("%s: unsupported query %s on %q: %s", e.Model, e.Op, e.Prop, e.Msg)
}

// QueryError describes a malformed query description.
type QueryError struct {
	Model string
	Msg   string
}

func queryErrf(model string, format string, args ...any) error {
	return &QueryError{model, fmt.Sprintf(format, args...)}
}

func (e *QueryError) Unwrap() error {
	return ErrInvalidQuery
}

func (e *QueryError) Error() string {
	return e.Model + ": invalid query: " + e.Msg
}

// IDTypeError is returned for values that cannot be turned into an ID.
type IDTypeError struct {
	Value any
	Msg   string
}

func (e *IDTypeError) Error() string {
	return fmt.Sprintf("invalid id %v: %s", e.Value, e.Msg)
}
