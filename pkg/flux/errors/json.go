package errors

import (
	"reflect"

	"github.com/bytedance/sonic"
)

// circularMarker replaces any value revisited during serialization.
const circularMarker = "[Circular]"

// maxSnapshotDepth bounds the walk so pathological trees stay cheap even
// without cycles.
const maxSnapshotDepth = 10

// MarshalJSON renders the error as a flat, serialization-safe object. The
// attached config, request and response may contain reference cycles; the
// walk visits every reference once and substitutes a cycle marker on revisit,
// so this method never fails on circular input.
func (e *Error) MarshalJSON() ([]byte, error) {
	snapshot := map[string]any{
		"message": e.Message,
		"code":    string(e.Code),
	}
	if e.Status > 0 {
		snapshot["status"] = e.Status
	}
	if e.RequestID != "" {
		snapshot["requestId"] = e.RequestID
	}
	if e.cause != nil {
		snapshot["cause"] = e.cause.Error()
	}
	if e.Config != nil {
		snapshot["config"] = snapshotValue(reflect.ValueOf(e.Config), map[uintptr]bool{}, 0)
	}
	if e.Response != nil {
		snapshot["response"] = snapshotValue(reflect.ValueOf(e.Response), map[uintptr]bool{}, 0)
	}

	out, err := sonic.Marshal(snapshot)
	if err != nil {
		// The snapshot contains only plain values, but guard anyway so the
		// serialization contract holds unconditionally.
		return sonic.Marshal(map[string]string{
			"message": e.Message,
			"code":    string(e.Code),
		})
	}
	return out, nil
}

// snapshotValue converts v into a tree of plain Go values, replacing repeated
// references with circularMarker and dropping values that cannot be
// serialized (functions, channels).
func snapshotValue(v reflect.Value, seen map[uintptr]bool, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxSnapshotDepth {
		return circularMarker
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return snapshotValue(v.Elem(), seen, depth)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if seen[addr] {
			return circularMarker
		}
		seen[addr] = true
		out := snapshotValue(v.Elem(), seen, depth+1)
		delete(seen, addr)
		return out

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		addr := v.Pointer()
		if seen[addr] {
			return circularMarker
		}
		seen[addr] = true
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key()
			name := ""
			if key.Kind() == reflect.String {
				name = key.String()
			} else {
				name = formatKey(key)
			}
			out[name] = snapshotValue(iter.Value(), seen, depth+1)
		}
		delete(seen, addr)
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Len() // do not inline raw payloads, report size only
		}
		addr := v.Pointer()
		if seen[addr] {
			return circularMarker
		}
		seen[addr] = true
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = snapshotValue(v.Index(i), seen, depth+1)
		}
		delete(seen, addr)
		return out

	case reflect.Array:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = snapshotValue(v.Index(i), seen, depth+1)
		}
		return out

	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			out[field.Name] = snapshotValue(v.Field(i), seen, depth+1)
		}
		return out

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil

	default:
		if v.CanInterface() {
			return v.Interface()
		}
		return nil
	}
}

func formatKey(v reflect.Value) string {
	b, err := sonic.Marshal(v.Interface())
	if err != nil {
		return circularMarker
	}
	return string(b)
}
