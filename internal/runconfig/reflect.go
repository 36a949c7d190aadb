package runconfig

import "reflect"

func reflectStringMap(value any) map[string]any {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

func stringValue(value any) string {
	return reflect.ValueOf(value).String()
}
