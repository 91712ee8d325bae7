package serde

import (
	"fmt"
	"reflect"
	"strings"
)

// structToTree converts a struct (or map/slice/primitive) into the generic
// `any` tree bare_codec.go walks, using each field's `json` tag for the wire
// field name — the same tag the json and cbor codecs already key off of,
// so a protocol struct round-trips under the same field names across all
// three encodings.
func structToTree(v any) any {
	return toTree(reflect.ValueOf(v))
}

func toTree(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Interface, reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return toTree(rv.Elem())
	case reflect.Struct:
		switch t := rv.Interface().(type) {
		case BigInt:
			return map[string]any{"$i": t.Value}
		case Bytes:
			return map[string]any{"$b": encodeBase64(t.Value)}
		}
		out := make(map[string]any)
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if f.PkgPath != "" {
				continue // unexported
			}
			name, omit, skip := jsonFieldName(f)
			if skip {
				continue
			}
			fv := rv.Field(i)
			if omit && isEmptyValue(fv) {
				continue
			}
			out[name] = toTree(fv)
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = toTree(iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return map[string]any{"$b": encodeBase64(rv.Bytes())}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = toTree(rv.Index(i))
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return rv.Interface()
	}
}

// treeToStruct populates dst (a pointer to a struct) from a generic tree
// produced by decoding the bare format. Only the subset of reflection
// needed for this package's own protocol structs is implemented: struct
// fields, strings, bools, float64-backed numbers, []byte via the "$b" tag,
// []any slices and nested structs/maps.
func treeToStruct(tree any, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("serde: treeToStruct destination must be a non-nil pointer")
	}
	return assign(rv.Elem(), tree)
}

func assign(dst reflect.Value, v any) error {
	if v == nil {
		return nil
	}
	switch dst.Kind() {
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assign(dst.Elem(), v)
	case reflect.Interface:
		dst.Set(reflect.ValueOf(v))
		return nil
	case reflect.Struct:
		switch dst.Interface().(type) {
		case BigInt:
			m, _ := v.(map[string]any)
			s, _ := m["$i"].(string)
			dst.Set(reflect.ValueOf(BigInt{Value: s}))
			return nil
		case Bytes:
			m, _ := v.(map[string]any)
			s, _ := m["$b"].(string)
			raw, err := decodeBase64(s)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(Bytes{Value: raw}))
			return nil
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("serde: expected object for struct %s, got %T", dst.Type(), v)
		}
		rt := dst.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if f.PkgPath != "" {
				continue
			}
			name, _, skip := jsonFieldName(f)
			if skip {
				continue
			}
			raw, present := m[name]
			if !present {
				continue
			}
			if err := assign(dst.Field(i), raw); err != nil {
				return fmt.Errorf("serde: field %s: %w", f.Name, err)
			}
		}
		return nil
	case reflect.Map:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("serde: expected object for map, got %T", v)
		}
		out := reflect.MakeMapWithSize(dst.Type(), len(m))
		for k, val := range m {
			ev := reflect.New(dst.Type().Elem()).Elem()
			if err := assign(ev, val); err != nil {
				return err
			}
			out.SetMapIndex(reflect.ValueOf(k), ev)
		}
		dst.Set(out)
		return nil
	case reflect.Slice:
		if dst.Type().Elem().Kind() == reflect.Uint8 {
			m, ok := v.(map[string]any)
			if ok {
				s, _ := m["$b"].(string)
				raw, err := decodeBase64(s)
				if err != nil {
					return err
				}
				dst.SetBytes(raw)
				return nil
			}
		}
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("serde: expected array, got %T", v)
		}
		out := reflect.MakeSlice(dst.Type(), len(arr), len(arr))
		for i, val := range arr {
			if err := assign(out.Index(i), val); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("serde: expected string, got %T", v)
		}
		dst.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("serde: expected bool, got %T", v)
		}
		dst.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		dst.SetInt(int64(f))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		dst.SetUint(uint64(f))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
		return nil
	default:
		return fmt.Errorf("serde: unsupported destination kind %s", dst.Kind())
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("serde: expected number, got %T", v)
	}
}

// jsonFieldName extracts the wire name from a struct field's `json` tag.
// skip is true for `json:"-"`; omit is true when `,omitempty` is present.
func jsonFieldName(f reflect.StructField) (name string, omit bool, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return f.Name, false, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omit = true
		}
	}
	return name, omit, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	default:
		return false
	}
}
