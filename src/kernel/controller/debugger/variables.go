package debugger

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/llmspell/spellkernel/src/kernel/entity"
)

const _maxValueLen = 256

// references hands out variable reference ids for values that can be expanded. Ids are only valid
// while the execution stays paused.
type references struct {
	next   int
	values map[int]any
}

func newReferences() *references {
	return &references{next: 1, values: make(map[int]any)}
}

func (r *references) add(v any) int {
	id := r.next
	r.next++
	r.values[id] = v
	return id
}

func (r *references) get(id int) (any, bool) {
	v, ok := r.values[id]
	return v, ok
}

// variablesOf lists the children of v: map entries, slice elements or exported struct fields.
func (r *references) variablesOf(v any) []entity.Variable {
	if vars, ok := v.(map[string]any); ok {
		out := make([]entity.Variable, 0, len(vars))
		for _, name := range sortedNames(vars) {
			out = append(out, r.variable(name, vars[name]))
		}
		return out
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	var out []entity.Variable
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			out = append(out, r.variable(strconv.Itoa(i), interfaceOf(rv.Index(i))))
		}
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			out = append(out, r.variable(fmt.Sprint(k.Interface()), interfaceOf(rv.MapIndex(k))))
		}
	case reflect.Struct:
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			out = append(out, r.variable(t.Field(i).Name, interfaceOf(rv.Field(i))))
		}
	}
	return out
}

func (r *references) variable(name string, v any) entity.Variable {
	out := entity.Variable{Name: name, Value: render(v), Type: typeName(v)}
	if expandable(v) {
		out.VariablesReference = r.add(v)
	}
	return out
}

func interfaceOf(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

func expandable(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Struct:
		return rv.NumField() > 0
	}
	return false
}

func render(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "nil"
	case string:
		s = strconv.Quote(x)
	default:
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > _maxValueLen {
		s = s[:_maxValueLen] + "..."
	}
	return s
}

func typeName(v any) string {
	if v == nil {
		return ""
	}
	return reflect.TypeOf(v).String()
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
