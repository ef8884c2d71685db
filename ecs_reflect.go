package gekko2d

import "reflect"

// Component columns are typed slices held as any, so queries can recover
// them with a plain type assertion.

func reflectSliceMake(elem reflect.Type) any {
	return reflect.MakeSlice(reflect.SliceOf(elem), 0, 4).Interface()
}

func reflectSliceGet(slice any, idx int) reflect.Value {
	return reflect.ValueOf(slice).Index(idx)
}

func reflectSliceSet(slice any, idx int, val reflect.Value) {
	reflect.ValueOf(slice).Index(idx).Set(val)
}

func reflectSliceAppend(slice any, val reflect.Value) any {
	return reflect.Append(reflect.ValueOf(slice), val).Interface()
}

func reflectSliceTruncate(slice any, n int) any {
	v := reflect.ValueOf(slice)
	v.Index(n).SetZero()
	return v.Slice(0, n).Interface()
}
