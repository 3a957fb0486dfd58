package scriptruntime

import (
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type named int

func TestLiteral(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
		ok    bool
	}{
		{name: "int", value: 42, want: "int(42)", ok: true},
		{name: "uint8", value: uint8(7), want: "uint8(7)", ok: true},
		{name: "float", value: 2.5, want: "float64(2.5)", ok: true},
		{name: "string", value: "a\"b", want: `"a\"b"`, ok: true},
		{name: "bool", value: true, want: "true", ok: true},
		{name: "slice", value: []int{1, 2}, want: "[]int{int(1), int(2)}", ok: true},
		{name: "nil slice", value: []string(nil), want: "[]string(nil)", ok: true},
		{name: "map sorted", value: map[string]int{"b": 2, "a": 1}, want: `map[string]int{"a": int(1), "b": int(2)}`, ok: true},
		{name: "array", value: [2]bool{true, false}, want: "[2]bool{true, false}", ok: true},
		{name: "named type", value: named(1)},
		{name: "struct", value: struct{ A int }{1}},
		{name: "nan", value: math.NaN()},
		{name: "func", value: func() {}},
		{name: "slice of structs", value: []struct{}{{}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := literal(reflect.ValueOf(tt.value))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportLiteral(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
		ok    bool
	}{
		{name: "whole number", value: float64(3), want: "3", ok: true},
		{name: "fraction", value: 0.5, want: "float64(0.5)", ok: true},
		{name: "string", value: "x", want: `"x"`, ok: true},
		{name: "list", value: []any{"a", float64(1)}, want: `[]interface{}{"a", 1}`, ok: true},
		{name: "object", value: map[string]any{"k": true}, want: `map[string]interface{}{"k": true}`, ok: true},
		{name: "null", value: nil},
		{name: "nested null", value: []any{nil}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := importLiteral(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportable(t *testing.T) {
	v, ok := exportable(reflect.ValueOf(map[string]int{"a": 1}))
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"a": 1}, v)

	_, ok = exportable(reflect.ValueOf(map[int]int{1: 1}))
	assert.False(t, ok, "JSON objects need string keys")
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, `"hi"`, display(reflect.ValueOf("hi")))
	assert.Equal(t, "[1 2]", display(reflect.ValueOf([]int{1, 2})))
	assert.Equal(t, "<invalid>", display(reflect.Value{}))
}
