package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// valueFormat selects how composite values are rendered.
type valueFormat int

const (
	// plainFormat renders values the way a human would write them: "[1,2]", "{a=1}".
	plainFormat valueFormat = iota
	// taggedFormat prefixes composites with their kind and length: "slice[2]:{1,2}".
	taggedFormat
)

// maxValueDepth bounds recursion so self-referential values fail instead of overflowing the stack.
const maxValueDepth = 32

var (
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	timeType     = reflect.TypeOf(time.Time{})
)

// argFault locates a value inside an argument that cannot be serialized.
type argFault struct {
	path   string
	reason string
}

func (f *argFault) toError(operation string, index int) error {
	return &InvalidArgumentError{
		Operation: operation,
		Index:     index,
		Path:      f.path,
		Reason:    f.reason,
	}
}

// valueSerializer turns argument values into canonical strings using reflection.
// Output never depends on memory addresses or map iteration order, so keys are
// stable across processes. A nil argument and values with no stable form
// (funcs, channels) are rejected instead of being rendered.
type valueSerializer struct {
	format valueFormat
}

func (s valueSerializer) serialize(v any) (string, *argFault) {
	if v == nil {
		return "", &argFault{reason: "nil value"}
	}
	return s.serializeValue(reflect.ValueOf(v), "", 0)
}

func (s valueSerializer) serializeValue(rv reflect.Value, path string, depth int) (string, *argFault) {
	if depth > maxValueDepth {
		return "", &argFault{path: path, reason: fmt.Sprintf("value nested deeper than %d levels", maxValueDepth)}
	}

	switch rv.Kind() {
	case reflect.Invalid:
		return s.nilValue(path, "nil value")
	case reflect.Pointer:
		if rv.IsNil() {
			return s.nilValue(path, "nil pointer of type "+rv.Type().String())
		}
	case reflect.Interface:
		if rv.IsNil() {
			return s.nilValue(path, "nil interface")
		}
		return s.serializeValue(rv.Elem(), path, depth+1)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", &argFault{path: path, reason: rv.Type().String() + " has no stable string form"}
	}

	if rv.CanInterface() {
		if rv.Type() == timeType {
			return rv.Interface().(time.Time).UTC().Format(time.RFC3339Nano), nil
		}
		if rv.Type().Implements(stringerType) && !promotesTimeString(rv) {
			return rv.Interface().(fmt.Stringer).String(), nil
		}
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return s.serializeValue(rv.Elem(), path, depth+1)
	case reflect.Slice:
		return s.serializeSlice(rv, path, depth)
	case reflect.Array:
		return s.serializeList(rv, path, "array", depth)
	case reflect.Map:
		return s.serializeMap(rv, path, depth)
	case reflect.Struct:
		return s.serializeStruct(rv, path, depth)
	case reflect.String:
		return rv.String(), nil
	}

	if isBasicKind(rv.Kind()) {
		if rv.CanInterface() {
			return fmt.Sprintf("%v", rv.Interface()), nil
		}
		return fmt.Sprintf("%v", rv), nil
	}

	return "", &argFault{path: path, reason: "unsupported kind " + rv.Kind().String()}
}

// nilValue rejects a missing top-level argument. Nested nils are rendered as a
// token since they are as deterministic as any other value.
func (s valueSerializer) nilValue(path, reason string) (string, *argFault) {
	if path == "" {
		return "", &argFault{reason: reason}
	}
	return "nil", nil
}

func (s valueSerializer) serializeSlice(rv reflect.Value, path string, depth int) (string, *argFault) {
	if rv.IsNil() {
		if s.format == taggedFormat {
			return "slice:nil", nil
		}
		return "[]", nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		if s.format == taggedFormat {
			return fmt.Sprintf("bytes[%d]:%x", rv.Len(), rv.Bytes()), nil
		}
		return string(rv.Bytes()), nil
	}
	return s.serializeList(rv, path, "slice", depth)
}

// serializeList handles slices and arrays element by element.
func (s valueSerializer) serializeList(rv reflect.Value, path, kind string, depth int) (string, *argFault) {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		part, fault := s.serializeValue(rv.Index(i), fmt.Sprintf("%s[%d]", path, i), depth+1)
		if fault != nil {
			return "", fault
		}
		parts[i] = part
	}

	if s.format == taggedFormat {
		return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ",")), nil
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

// serializeMap renders entries ordered by their serialized key.
func (s valueSerializer) serializeMap(rv reflect.Value, path string, depth int) (string, *argFault) {
	if rv.IsNil() {
		if s.format == taggedFormat {
			return "map:nil", nil
		}
		return "{}", nil
	}

	type pair struct {
		key   string
		value string
	}

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, fault := s.serializeValue(iter.Key(), path+"{key}", depth+1)
		if fault != nil {
			return "", fault
		}
		value, fault := s.serializeValue(iter.Value(), path+"["+key+"]", depth+1)
		if fault != nil {
			return "", fault
		}
		pairs = append(pairs, pair{key: key, value: value})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key == pairs[j].key {
			return pairs[i].value < pairs[j].value
		}
		return pairs[i].key < pairs[j].key
	})

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.key + "=" + p.value
	}

	if s.format == taggedFormat {
		return fmt.Sprintf("map[%d]:{%s}", len(parts), strings.Join(parts, ",")), nil
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// serializeStruct renders exported fields in declaration order.
func (s valueSerializer) serializeStruct(rv reflect.Value, path string, depth int) (string, *argFault) {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		value, fault := s.serializeValue(rv.Field(i), path+"."+field.Name, depth+1)
		if fault != nil {
			return "", fault
		}
		parts = append(parts, field.Name+":"+value)
	}

	if s.format == taggedFormat {
		return "struct:{" + strings.Join(parts, ",") + "}", nil
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// promotesTimeString reports whether the String method of rv is the one of
// time.Time, directly through a pointer or promoted from an embedded field.
// Its output carries the local zone and monotonic reading, so such values are
// dereferenced or rendered field by field instead.
func promotesTimeString(rv reflect.Value) bool {
	sv := rv
	if sv.Kind() == reflect.Pointer {
		sv = sv.Elem()
	}
	if sv.Type() == timeType {
		return true
	}
	if sv.Kind() != reflect.Struct {
		return false
	}

	rt := sv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.Anonymous || !field.IsExported() {
			continue
		}

		var embedded time.Time
		switch field.Type {
		case timeType:
			embedded = sv.Field(i).Interface().(time.Time)
		case reflect.PointerTo(timeType):
			if sv.Field(i).IsNil() {
				return true
			}
			embedded = *sv.Field(i).Interface().(*time.Time)
		default:
			continue
		}
		return rv.Interface().(fmt.Stringer).String() == embedded.String()
	}
	return false
}

func isBasicKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}
