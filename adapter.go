package odm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Adapter is the storage capability a Model runs on. Implementations must be
// safe for concurrent use; individual Write, Create and Remove calls on the
// same key need not be ordered by the caller.
type Adapter interface {
	Has(ctx context.Context, key string) (bool, error)

	// Read fails with an error wrapping ErrNotFound when key is missing.
	Read(ctx context.Context, key string) (Document, error)

	Write(ctx context.Context, key string, doc Document) error

	// Create stores doc under template with its "%u" placeholder replaced by
	// a fresh ID, and returns the resulting key.
	Create(ctx context.Context, template string, doc Document) (string, error)

	// Remove fails with an error wrapping ErrNotFound when key is missing.
	Remove(ctx context.Context, key string) error

	// KeyStream yields matching keys in byte order. Stopping the iteration
	// early releases any underlying cursor.
	KeyStream(ctx context.Context, opt KeyStreamOptions) iter.Seq2[string, error]

	// Purge deletes every key.
	Purge(ctx context.Context) error

	Close() error
}

// KeyStreamOptions filters keys by prefix and depth. The prefix matches whole
// path segments: "models/User" does not match "models/UserGroup/...".
type KeyStreamOptions struct {
	Prefix string

	// MaxDepth limits the number of path segments after the prefix;
	// zero means unlimited.
	MaxDepth int

	// Separator between path segments; defaults to "/".
	Separator string
}

func (o KeyStreamOptions) match(key string) bool {
	if !strings.HasPrefix(key, o.Prefix) {
		return false
	}
	sep := o.Separator
	if sep == "" {
		sep = "/"
	}
	rest := key[len(o.Prefix):]
	if o.Prefix != "" && !strings.HasSuffix(o.Prefix, sep) {
		if rest == "" {
			return o.MaxDepth <= 0
		}
		if !strings.HasPrefix(rest, sep) {
			return false
		}
		rest = rest[len(sep):]
	}
	if o.MaxDepth <= 0 {
		return true
	}
	if rest == "" {
		return false
	}
	return strings.Count(rest, sep) < o.MaxDepth
}

// ReadOr is Read that returns ifMissing instead of a not-found error.
func ReadOr(ctx context.Context, a Adapter, key string, ifMissing Document) (Document, error) {
	doc, err := a.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return ifMissing, nil
	}
	return doc, err
}

const idPlaceholder = "%u"

func itemsPrefix(model string) string {
	return "models/" + model + "/items/"
}

// RecordKey returns the storage key of a record.
func RecordKey(model string, id ID) string {
	return itemsPrefix(model) + id.String()
}

func recordKeyTemplate(model string) string {
	return itemsPrefix(model) + idPlaceholder
}

// ParseRecordKey splits a key produced by RecordKey.
func ParseRecordKey(key string) (model string, id ID, err error) {
	rest, ok := strings.CutPrefix(key, "models/")
	if !ok {
		return "", ZeroID, fmt.Errorf("invalid record key %q", key)
	}
	model, idstr, ok := strings.Cut(rest, "/items/")
	if !ok || model == "" || strings.Contains(idstr, "/") {
		return "", ZeroID, fmt.Errorf("invalid record key %q", key)
	}
	id, err = NormalizeID(idstr)
	if err != nil {
		return "", ZeroID, fmt.Errorf("invalid record key %q: %w", key, err)
	}
	return model, id, nil
}
