package odm

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// BooleanType stores bool values. Unrecognized input coerces to nil.
type BooleanType struct{}

func (BooleanType) Name() string { return "boolean" }

func (BooleanType) CheckDefinition(def *PropDef) []error {
	var errs []error
	if def.Min != nil || def.Max != nil || def.Step != 0 {
		errs = append(errs, fmt.Errorf("boolean does not support min/max/step"))
	}
	return errs
}

func (BooleanType) Coerce(value any, def *PropDef) any {
	if value == DefaultValue {
		value = def.defaultValue()
	}
	return coerceBool(value)
}

func coerceBool(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on", "y":
			return true
		case "false", "0", "no", "off", "n", "":
			return false
		default:
			return nil
		}
	}
	if f, ok := toFloat(value); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return nil
}

func (BooleanType) Validate(name string, value any, def *PropDef, out *Violations) {
	if value == nil {
		if def.Required {
			out.Add(name, "required", "is required")
		}
		return
	}
	if _, ok := value.(bool); !ok {
		out.Add(name, "type", "is not a boolean")
	}
}

func (BooleanType) Serialize(value any) any {
	if b, ok := value.(bool); ok {
		return b
	}
	return nil
}

func (BooleanType) Deserialize(value any) any {
	return coerceBool(value)
}

func (BooleanType) Compare(value, ref any, op Op) bool {
	return compareWith(compareBools, value, ref, op)
}

func (BooleanType) Sort(a, b any) int {
	return sortWith(compareBools, a, b)
}

func (BooleanType) IndexKey(value any) any {
	return value
}

func compareBools(a, b any) int {
	x, _ := a.(bool)
	y, _ := b.(bool)
	switch {
	case x == y:
		return 0
	case !x:
		return -1
	default:
		return 1
	}
}

// StringType stores strings. Scalars are formatted, nil stays nil.
type StringType struct{}

func (StringType) Name() string { return "string" }

func (StringType) CheckDefinition(def *PropDef) []error {
	var errs []error
	if def.Min != nil || def.Max != nil || def.Step != 0 {
		errs = append(errs, fmt.Errorf("string does not support min/max/step, use minLength/maxLength"))
	}
	if def.MinLength < 0 || def.MaxLength < 0 {
		errs = append(errs, fmt.Errorf("length bounds must not be negative"))
	}
	if def.MaxLength > 0 && def.MinLength > def.MaxLength {
		errs = append(errs, fmt.Errorf("minLength %d > maxLength %d", def.MinLength, def.MaxLength))
	}
	if def.Pattern != "" {
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("pattern: %w", err))
		} else {
			def.pattern = re
		}
	}
	if s, ok := def.Default.(string); ok && len(def.Enum) > 0 && !slices.Contains(def.Enum, s) {
		errs = append(errs, fmt.Errorf("default %q is not one of the enum values", s))
	}
	return errs
}

func (StringType) Coerce(value any, def *PropDef) any {
	if value == DefaultValue {
		value = def.defaultValue()
	}
	return coerceString(value)
}

func coerceString(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	if n, ok := toInt(value); ok {
		return strconv.FormatInt(n, 10)
	}
	if f, ok := toFloat(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return nil
}

func (StringType) Validate(name string, value any, def *PropDef, out *Violations) {
	s, ok := value.(string)
	if value == nil || (ok && s == "") {
		if def.Required {
			out.Add(name, "required", "is required")
		}
		if value == nil {
			return
		}
	}
	if !ok {
		out.Add(name, "type", "is not a string")
		return
	}
	n := utf8.RuneCountInString(s)
	if def.MinLength > 0 && n < def.MinLength {
		out.Add(name, "minLength", "must be at least %d characters", def.MinLength)
	}
	if def.MaxLength > 0 && n > def.MaxLength {
		out.Add(name, "maxLength", "must be at most %d characters", def.MaxLength)
	}
	if def.pattern != nil && !def.pattern.MatchString(s) {
		out.Add(name, "pattern", "must match %s", def.Pattern)
	}
	if len(def.Enum) > 0 && !slices.Contains(def.Enum, s) {
		out.Add(name, "enum", "must be one of %s", strings.Join(def.Enum, ", "))
	}
}

func (StringType) Serialize(value any) any {
	if s, ok := value.(string); ok {
		return s
	}
	return nil
}

func (StringType) Deserialize(value any) any {
	return coerceString(value)
}

func (StringType) Compare(value, ref any, op Op) bool {
	return compareWith(compareStrings, value, ref, op)
}

func (StringType) Sort(a, b any) int {
	return sortWith(compareStrings, a, b)
}

func (StringType) IndexKey(value any) any {
	return value
}

func compareStrings(a, b any) int {
	x, _ := a.(string)
	y, _ := b.(string)
	return cmp.Compare(x, y)
}

// UUIDType stores record identifiers, serialized in canonical string form.
type UUIDType struct{}

func (UUIDType) Name() string { return "uuid" }

func (UUIDType) CheckDefinition(def *PropDef) []error {
	var errs []error
	if def.Min != nil || def.Max != nil || def.Step != 0 {
		errs = append(errs, fmt.Errorf("uuid does not support min/max/step"))
	}
	if def.Default != nil && !IsValidID(def.Default) {
		if _, dyn := def.Default.(func() any); !dyn {
			errs = append(errs, fmt.Errorf("default %v is not a valid id", def.Default))
		}
	}
	return errs
}

func (UUIDType) Coerce(value any, def *PropDef) any {
	if value == DefaultValue {
		value = def.defaultValue()
	}
	return coerceID(value)
}

func coerceID(value any) any {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok {
		value = strings.ToLower(strings.TrimSpace(s))
		if value == "" {
			return nil
		}
	}
	id, err := NormalizeID(value)
	if err != nil {
		return nil
	}
	return id
}

func (UUIDType) Validate(name string, value any, def *PropDef, out *Violations) {
	if value == nil {
		if def.Required {
			out.Add(name, "required", "is required")
		}
		return
	}
	if _, ok := value.(ID); !ok {
		out.Add(name, "type", "is not a valid id")
	}
}

func (UUIDType) Serialize(value any) any {
	if id, ok := value.(ID); ok {
		return id.String()
	}
	return nil
}

func (UUIDType) Deserialize(value any) any {
	return coerceID(value)
}

func (UUIDType) Compare(value, ref any, op Op) bool {
	return compareWith(compareIDValues, value, ref, op)
}

func (UUIDType) Sort(a, b any) int {
	return sortWith(compareIDValues, a, b)
}

func (UUIDType) IndexKey(value any) any {
	return value
}

func compareIDValues(a, b any) int {
	x, _ := a.(ID)
	y, _ := b.(ID)
	return compareIDs(x, y)
}
