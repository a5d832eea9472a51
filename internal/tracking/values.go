package tracking

import "reflect"

// ValuesEqual compares field values by value, not by reference. Types with an
// Equal(T) bool method (time.Time, decimal.Decimal) are compared through it.
func ValuesEqual(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if isNil(va) || isNil(vb) {
		return isNil(va) && isNil(vb)
	}
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Pointer {
		return ValuesEqual(va.Elem().Interface(), vb.Elem().Interface())
	}
	if m := va.MethodByName("Equal"); m.IsValid() {
		mt := m.Type()
		if mt.NumIn() == 1 && mt.In(0) == va.Type() && mt.NumOut() == 1 && mt.Out(0).Kind() == reflect.Bool {
			return m.Call([]reflect.Value{vb})[0].Bool()
		}
	}
	return reflect.DeepEqual(a, b)
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
