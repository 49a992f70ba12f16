// Package schema derives the introspective input/output description of
// handler types from their Go definitions.
package schema

import (
	"encoding"
	"encoding/json"
	"reflect"
	"strings"
)

// Field is one node of a type description.
type Field struct {
	Kind        string  `json:"kind"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

var (
	textMarshaler = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	rawMessage    = reflect.TypeOf(json.RawMessage(nil))
)

// Of describes T. Struct fields use their json name and the optional
// `desc` tag; pointer fields are reported as optional.
func Of[T any]() Field {
	return Describe(reflect.TypeOf((*T)(nil)).Elem())
}

// Describe describes t.
func Describe(t reflect.Type) Field {
	return describe(t, map[reflect.Type]bool{})
}

func describe(t reflect.Type, seen map[reflect.Type]bool) Field {
	if t == nil {
		return Field{Kind: "empty", Name: "empty", Fields: []Field{}}
	}
	if t == rawMessage || t.Kind() == reflect.Interface {
		return leaf("any")
	}
	if t.Implements(textMarshaler) {
		return leaf("string")
	}

	switch t.Kind() {
	case reflect.Pointer:
		inner := describe(t.Elem(), seen)
		return Field{Kind: "optional", Name: "optional (see fields)", Description: "may be null", Fields: []Field{inner}}
	case reflect.Bool:
		return leaf("bool")
	case reflect.String:
		return leaf("string")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return leaf("integer")
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return leaf("unsigned")
	case reflect.Float32, reflect.Float64:
		return leaf("number")
	case reflect.Slice, reflect.Array:
		return Field{Kind: "array", Name: "array", Fields: []Field{describe(t.Elem(), seen)}}
	case reflect.Map:
		return Field{Kind: "map", Name: "map", Fields: []Field{describe(t.Key(), seen), describe(t.Elem(), seen)}}
	case reflect.Struct:
		if t.NumField() == 0 {
			return Field{Kind: "empty", Name: "empty", Fields: []Field{}}
		}
		if seen[t] {
			return Field{Kind: t.Name(), Name: t.Name(), Description: "recursive", Fields: []Field{}}
		}
		seen[t] = true
		defer delete(seen, t)
		out := Field{Kind: "struct", Name: t.Name(), Fields: []Field{}}
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			name := sf.Name
			if tag, ok := sf.Tag.Lookup("json"); ok {
				if tag == "-" {
					continue
				}
				if n, _, _ := strings.Cut(tag, ","); n != "" {
					name = n
				}
			}
			child := describe(sf.Type, seen)
			child.Name = name
			if desc := sf.Tag.Get("desc"); desc != "" {
				child.Description = desc
			}
			out.Fields = append(out.Fields, child)
		}
		return out
	}
	return leaf(t.Kind().String())
}

func leaf(kind string) Field {
	return Field{Kind: kind, Name: kind, Fields: []Field{}}
}
