package driver

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
)

// TypeConversionError represents an error during type conversion from database types.
type TypeConversionError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *TypeConversionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type conversion error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type conversion error: expected %s, got %s", e.Expected, e.Actual)
}

// NewTypeConversionError creates a new TypeConversionError.
func NewTypeConversionError(expected, actual, field string) *TypeConversionError {
	return &TypeConversionError{
		Expected: expected,
		Actual:   actual,
		Field:    field,
	}
}

// AsString safely converts an interface{} to string.
func AsString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AsInt64 safely converts an interface{} to int64.
func AsInt64(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	i, ok := v.(int64)
	return i, ok
}

// AsBool safely converts an interface{} to bool.
func AsBool(v any) (bool, bool) {
	if v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// AsStringSlice converts a list property to []string. Neo4j returns lists
// as []any, so both shapes are accepted; any non-string element fails.
func AsStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// MustString converts an interface{} to string or returns an error.
func MustString(v any, field string) (string, error) {
	s, ok := AsString(v)
	if !ok {
		return "", NewTypeConversionError("string", fmt.Sprintf("%T", v), field)
	}
	return s, nil
}

// MustInt64 converts an interface{} to int64 or returns an error.
func MustInt64(v any, field string) (int64, error) {
	i, ok := AsInt64(v)
	if !ok {
		return 0, NewTypeConversionError("int64", fmt.Sprintf("%T", v), field)
	}
	return i, nil
}

// MustBool converts an interface{} to bool or returns an error.
func MustBool(v any, field string) (bool, error) {
	b, ok := AsBool(v)
	if !ok {
		return false, NewTypeConversionError("bool", fmt.Sprintf("%T", v), field)
	}
	return b, nil
}

// recordString reads a required string column.
func recordString(record *db.Record, key string) (string, error) {
	v, _ := record.Get(key)
	return MustString(v, key)
}

// recordInt64 reads a required integer column.
func recordInt64(record *db.Record, key string) (int64, error) {
	v, _ := record.Get(key)
	return MustInt64(v, key)
}

// recordBool reads a required boolean column.
func recordBool(record *db.Record, key string) (bool, error) {
	v, _ := record.Get(key)
	return MustBool(v, key)
}

// recordStrings reads an optional list column; null reads as empty.
func recordStrings(record *db.Record, key string) ([]string, error) {
	v, _ := record.Get(key)
	if v == nil {
		return []string{}, nil
	}
	s, ok := AsStringSlice(v)
	if !ok {
		return nil, NewTypeConversionError("[]string", fmt.Sprintf("%T", v), key)
	}
	return s, nil
}
