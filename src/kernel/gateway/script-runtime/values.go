package scriptruntime

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// literal renders v as Go source that reproduces it, for basic values and unnamed slices, arrays
// and maps built from them. Anything else reports false.
func literal(v reflect.Value) (string, bool) {
	if !v.IsValid() {
		return "", false
	}
	t := v.Type()
	switch t.Kind() {
	case reflect.Bool:
		if t.PkgPath() != "" {
			return "", false
		}
		return strconv.FormatBool(v.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t.PkgPath() != "" {
			return "", false
		}
		return fmt.Sprintf("%s(%d)", t, v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if t.PkgPath() != "" {
			return "", false
		}
		return fmt.Sprintf("%s(%d)", t, v.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if t.PkgPath() != "" || math.IsInf(f, 0) || math.IsNaN(f) {
			return "", false
		}
		return fmt.Sprintf("%s(%s)", t, strconv.FormatFloat(f, 'g', -1, t.Bits())), true
	case reflect.String:
		if t.PkgPath() != "" {
			return "", false
		}
		return strconv.Quote(v.String()), true
	case reflect.Slice, reflect.Array:
		if t.Name() != "" {
			return "", false
		}
		if t.Kind() == reflect.Slice && v.IsNil() {
			return fmt.Sprintf("%s(nil)", t), true
		}
		elems := make([]string, v.Len())
		for i := range elems {
			e, ok := literal(v.Index(i))
			if !ok {
				return "", false
			}
			elems[i] = e
		}
		return fmt.Sprintf("%s{%s}", t, strings.Join(elems, ", ")), true
	case reflect.Map:
		if t.Name() != "" {
			return "", false
		}
		if v.IsNil() {
			return fmt.Sprintf("%s(nil)", t), true
		}
		entries := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, ok := literal(iter.Key())
			if !ok {
				return "", false
			}
			e, ok := literal(iter.Value())
			if !ok {
				return "", false
			}
			entries = append(entries, k+": "+e)
		}
		sort.Strings(entries)
		return fmt.Sprintf("%s{%s}", t, strings.Join(entries, ", ")), true
	}
	return "", false
}

// exportable converts v into a JSON-compatible value when literal can also render it.
func exportable(v reflect.Value) (any, bool) {
	if _, ok := literal(v); !ok {
		return nil, false
	}
	if v.Kind() == reflect.Map && v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	if !v.CanInterface() {
		return nil, false
	}
	return v.Interface(), true
}

// importLiteral renders a decoded JSON value as Go source. Whole numbers become ints.
func importLiteral(value any) (string, bool) {
	switch x := value.(type) {
	case nil:
		return "", false
	case bool:
		return strconv.FormatBool(x), true
	case string:
		return strconv.Quote(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return strconv.FormatInt(int64(x), 10), true
		}
		return fmt.Sprintf("float64(%s)", strconv.FormatFloat(x, 'g', -1, 64)), true
	case []any:
		elems := make([]string, len(x))
		for i, e := range x {
			s, ok := importLiteral(e)
			if !ok {
				return "", false
			}
			elems[i] = s
		}
		return "[]interface{}{" + strings.Join(elems, ", ") + "}", true
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]string, len(keys))
		for i, k := range keys {
			s, ok := importLiteral(x[k])
			if !ok {
				return "", false
			}
			entries[i] = strconv.Quote(k) + ": " + s
		}
		return "map[string]interface{}{" + strings.Join(entries, ", ") + "}", true
	}
	rv := reflect.ValueOf(value)
	return literal(rv)
}

// display renders a value for variable views and inspection.
func display(v reflect.Value) string {
	if !v.IsValid() {
		return "<invalid>"
	}
	if !v.CanInterface() {
		return "<" + v.Type().String() + ">"
	}
	if s, ok := v.Interface().(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v.Interface())
}
