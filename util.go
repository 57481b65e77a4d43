package odm

import (
	"log/slog"
	"math"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// isNull reports whether v is nil or the NaN invalid-number sentinel.
func isNull(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(v)
	default:
		return false
	}
}

// isInvalid reports whether v is the NaN sentinel numeric coercion produces
// for unparsable input.
func isInvalid(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

func idAttr(id ID) slog.Attr {
	return slog.String("id", id.String())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
