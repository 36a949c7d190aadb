package taskdef

import (
	"fmt"
	"reflect"
	"strings"
)

// FieldType is the semantic type of a task setting.
type FieldType string

const (
	TypeString FieldType = "string"
	TypePath   FieldType = "path"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeList   FieldType = "list"
	TypeMap    FieldType = "map"
)

// ParseFieldType maps a schema string onto a FieldType.
func ParseFieldType(raw string) (FieldType, error) {
	switch ft := FieldType(strings.ToLower(strings.TrimSpace(raw))); ft {
	case TypeString, TypePath, TypeInt, TypeFloat, TypeBool, TypeList, TypeMap:
		return ft, nil
	case "integer":
		return TypeInt, nil
	case "number":
		return TypeFloat, nil
	case "mapping", "dict":
		return TypeMap, nil
	default:
		return "", fmt.Errorf("unknown field type %q", raw)
	}
}

// Matches reports whether value is an instance of the semantic type. Values
// come from TOML, YAML, or JSON decoders, so every integer kind counts as int
// and integers are acceptable wherever a float is expected.
func (t FieldType) Matches(value any) bool {
	if value == nil {
		return false
	}
	kind := reflect.TypeOf(value).Kind()
	switch t {
	case TypeString:
		return kind == reflect.String
	case TypePath:
		return kind == reflect.String && strings.TrimSpace(reflect.ValueOf(value).String()) != ""
	case TypeInt:
		return isInteger(kind)
	case TypeFloat:
		return isInteger(kind) || kind == reflect.Float32 || kind == reflect.Float64
	case TypeBool:
		return kind == reflect.Bool
	case TypeList:
		return kind == reflect.Slice || kind == reflect.Array
	case TypeMap:
		return kind == reflect.Map && reflect.TypeOf(value).Key().Kind() == reflect.String
	default:
		return false
	}
}

// Describe names the semantic type of a decoded value for error messages.
func Describe(value any) string {
	if value == nil {
		return "null"
	}
	kind := reflect.TypeOf(value).Kind()
	switch {
	case kind == reflect.String:
		return string(TypeString)
	case kind == reflect.Bool:
		return string(TypeBool)
	case isInteger(kind):
		return string(TypeInt)
	case kind == reflect.Float32 || kind == reflect.Float64:
		return string(TypeFloat)
	case kind == reflect.Slice || kind == reflect.Array:
		return string(TypeList)
	case kind == reflect.Map:
		return string(TypeMap)
	default:
		return reflect.TypeOf(value).String()
	}
}

func isInteger(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}
