package odm

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// isoMillis is the serialized date format: RFC 3339 in UTC with milliseconds.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DateType stores UTC times truncated to milliseconds. Numbers are read as
// epoch milliseconds. Index keys are epoch milliseconds.
type DateType struct{}

func (DateType) Name() string { return "date" }

func (DateType) CheckDefinition(def *PropDef) []error {
	var errs []error
	for _, b := range []*any{&def.Min, &def.Max} {
		if *b == nil {
			continue
		}
		v := coerceTime(*b)
		if v == nil {
			errs = append(errs, fmt.Errorf("bound %v is not a date", *b))
			*b = nil
			continue
		}
		*b = v
	}
	if def.Min != nil && def.Max != nil && def.Min.(time.Time).After(def.Max.(time.Time)) {
		errs = append(errs, fmt.Errorf("min %v > max %v", def.Min, def.Max))
	}
	if def.Step < 0 {
		errs = append(errs, fmt.Errorf("step must be positive, got %v", def.Step))
	}
	return errs
}

func (DateType) Coerce(value any, def *PropDef) any {
	if value == DefaultValue {
		value = def.defaultValue()
	}
	return coerceTime(value)
}

func coerceTime(value any) any {
	var t time.Time
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		t = v
	case *time.Time:
		if v == nil {
			return nil
		}
		t = *v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		var ok bool
		t, ok = parseTime(s)
		if !ok {
			return nil
		}
	case json.Number:
		ms, err := v.Int64()
		if err != nil {
			return nil
		}
		t = time.UnixMilli(ms)
	default:
		if ms, ok := toInt(value); ok {
			t = time.UnixMilli(ms)
		} else if f, ok := toFloat(value); ok && !math.IsNaN(f) {
			t = time.UnixMilli(int64(f))
		} else {
			return nil
		}
	}
	if t.IsZero() {
		return nil
	}
	return t.UTC().Truncate(time.Millisecond)
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (DateType) Validate(name string, value any, def *PropDef, out *Violations) {
	if value == nil {
		if def.Required {
			out.Add(name, "required", "is required")
		}
		return
	}
	t, ok := value.(time.Time)
	if !ok {
		out.Add(name, "type", "is not a valid date")
		return
	}
	if min, ok := def.Min.(time.Time); ok && t.Before(min) {
		out.Add(name, "min", "must not be before %s", min.Format(isoMillis))
	}
	if max, ok := def.Max.(time.Time); ok && t.After(max) {
		out.Add(name, "max", "must not be after %s", max.Format(isoMillis))
	}
	if def.Step > 0 {
		var base int64
		if min, ok := def.Min.(time.Time); ok {
			base = min.UnixMilli()
		}
		if !onStep(float64(t.UnixMilli()-base), def.Step) {
			out.Add(name, "step", "must be a multiple of %vms", def.Step)
		}
	}
}

func (DateType) Serialize(value any) any {
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(isoMillis)
	}
	return nil
}

func (DateType) Deserialize(value any) any {
	return coerceTime(value)
}

func (DateType) Compare(value, ref any, op Op) bool {
	return compareWith(compareTimes, value, ref, op)
}

func (DateType) Sort(a, b any) int {
	return sortWith(compareTimes, a, b)
}

func (DateType) IndexKey(value any) any {
	if t, ok := value.(time.Time); ok {
		return t.UnixMilli()
	}
	return value
}

func compareTimes(a, b any) int {
	x, _ := a.(time.Time)
	y, _ := b.(time.Time)
	return cmp.Compare(x.UnixMilli(), y.UnixMilli())
}
