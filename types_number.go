package odm

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IntegerType stores int64 values. Unparsable input coerces to NaN.
type IntegerType struct{}

func (IntegerType) Name() string { return "integer" }

func (IntegerType) CheckDefinition(def *PropDef) []error {
	var errs []error
	for _, b := range []*any{&def.Min, &def.Max} {
		if *b == nil {
			continue
		}
		v := coerceInt(*b)
		if isNull(v) {
			errs = append(errs, fmt.Errorf("bound %v is not an integer", *b))
			*b = nil
			continue
		}
		*b = v
	}
	if def.Min != nil && def.Max != nil && def.Min.(int64) > def.Max.(int64) {
		errs = append(errs, fmt.Errorf("min %v > max %v", def.Min, def.Max))
	}
	if def.Step < 0 || math.IsNaN(def.Step) {
		errs = append(errs, fmt.Errorf("step must be positive, got %v", def.Step))
	}
	if def.Default != nil {
		if _, dyn := def.Default.(func() any); !dyn && isNull(coerceInt(def.Default)) {
			errs = append(errs, fmt.Errorf("default %v is not an integer", def.Default))
		}
	}
	return errs
}

func (IntegerType) Coerce(value any, def *PropDef) any {
	if value == DefaultValue {
		value = def.defaultValue()
	}
	return coerceInt(value)
}

func coerceInt(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case int64:
		return v
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt(f)
		}
		return math.NaN()
	case json.Number:
		return coerceInt(v.String())
	}
	if f, ok := toFloat(value); ok {
		if n, ok := toInt(value); ok {
			return n
		}
		return floatToInt(f)
	}
	return math.NaN()
}

func floatToInt(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return math.NaN()
	}
	return int64(math.Trunc(f))
}

func (IntegerType) Validate(name string, value any, def *PropDef, out *Violations) {
	if value == nil {
		if def.Required {
			out.Add(name, "required", "is required")
		}
		return
	}
	n, ok := value.(int64)
	if !ok {
		out.Add(name, "type", "is not a valid integer")
		return
	}
	if min, ok := def.Min.(int64); ok && n < min {
		out.Add(name, "min", "must be at least %d, got %d", min, n)
	}
	if max, ok := def.Max.(int64); ok && n > max {
		out.Add(name, "max", "must be at most %d, got %d", max, n)
	}
	if def.Step > 0 {
		base, _ := def.Min.(int64)
		if !onStep(float64(n-base), def.Step) {
			out.Add(name, "step", "must be a multiple of %v", def.Step)
		}
	}
}

func (IntegerType) Serialize(value any) any {
	if n, ok := value.(int64); ok {
		return n
	}
	return nil
}

func (IntegerType) Deserialize(value any) any {
	v := coerceInt(value)
	if isNull(v) {
		return nil
	}
	return v
}

func (IntegerType) Compare(value, ref any, op Op) bool {
	return compareWith(compareNumbers, value, ref, op)
}

func (IntegerType) Sort(a, b any) int {
	return sortWith(compareNumbers, a, b)
}

func (IntegerType) IndexKey(value any) any {
	return value
}

// NumberType stores float64 values. Unparsable input coerces to NaN.
type NumberType struct{}

func (NumberType) Name() string { return "number" }

func (NumberType) CheckDefinition(def *PropDef) []error {
	var errs []error
	for _, b := range []*any{&def.Min, &def.Max} {
		if *b == nil {
			continue
		}
		v := coerceFloat(*b)
		if isNull(v) {
			errs = append(errs, fmt.Errorf("bound %v is not a number", *b))
			*b = nil
			continue
		}
		*b = v
	}
	if def.Min != nil && def.Max != nil && def.Min.(float64) > def.Max.(float64) {
		errs = append(errs, fmt.Errorf("min %v > max %v", def.Min, def.Max))
	}
	if def.Step < 0 || math.IsNaN(def.Step) {
		errs = append(errs, fmt.Errorf("step must be positive, got %v", def.Step))
	}
	return errs
}

func (NumberType) Coerce(value any, def *PropDef) any {
	if value == DefaultValue {
		value = def.defaultValue()
	}
	return coerceFloat(value)
}

func coerceFloat(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return 1.0
		}
		return 0.0
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return math.NaN()
		}
		return f
	case json.Number:
		return coerceFloat(v.String())
	}
	if f, ok := toFloat(value); ok {
		return f
	}
	return math.NaN()
}

func (NumberType) Validate(name string, value any, def *PropDef, out *Violations) {
	if value == nil {
		if def.Required {
			out.Add(name, "required", "is required")
		}
		return
	}
	f, ok := value.(float64)
	if !ok || math.IsNaN(f) {
		out.Add(name, "type", "is not a valid number")
		return
	}
	if min, ok := def.Min.(float64); ok && f < min {
		out.Add(name, "min", "must be at least %v, got %v", min, f)
	}
	if max, ok := def.Max.(float64); ok && f > max {
		out.Add(name, "max", "must be at most %v, got %v", max, f)
	}
	if def.Step > 0 {
		base, _ := def.Min.(float64)
		if !onStep(f-base, def.Step) {
			out.Add(name, "step", "must be a multiple of %v", def.Step)
		}
	}
}

func (NumberType) Serialize(value any) any {
	if f, ok := value.(float64); ok && !math.IsNaN(f) {
		return f
	}
	return nil
}

func (NumberType) Deserialize(value any) any {
	v := coerceFloat(value)
	if isNull(v) {
		return nil
	}
	return v
}

func (NumberType) Compare(value, ref any, op Op) bool {
	return compareWith(compareNumbers, value, ref, op)
}

func (NumberType) Sort(a, b any) int {
	return sortWith(compareNumbers, a, b)
}

func (NumberType) IndexKey(value any) any {
	return value
}

func onStep(delta, step float64) bool {
	q := delta / step
	return math.Abs(q-math.Round(q)) < 1e-9
}

func compareNumbers(a, b any) int {
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	}
	x, _ := toFloat(a)
	y, _ := toFloat(b)
	return cmp.Compare(x, y)
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), v <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	default:
		return 0, false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
