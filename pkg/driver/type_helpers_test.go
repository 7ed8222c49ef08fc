package driver

import (
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeConversionError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *TypeConversionError
		expected string
	}{
		{
			name:     "with field",
			err:      NewTypeConversionError("string", "int64", "name"),
			expected: `type conversion error for field "name": expected string, got int64`,
		},
		{
			name:     "without field",
			err:      NewTypeConversionError("bool", "<nil>", ""),
			expected: "type conversion error: expected bool, got <nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAsString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{"valid string", "Mondstadt", "Mondstadt", true},
		{"empty string", "", "", true},
		{"nil", nil, "", false},
		{"int64", int64(42), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AsString(tt.input)
			if ok != tt.wantOK {
				t.Errorf("AsString() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("AsString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsInt64AndBool(t *testing.T) {
	t.Parallel()

	i, ok := AsInt64(int64(-7))
	assert.True(t, ok)
	assert.Equal(t, int64(-7), i)
	_, ok = AsInt64(7)
	assert.False(t, ok, "plain int is not what the driver returns")

	b, ok := AsBool(true)
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = AsBool("true")
	assert.False(t, ok)
}

func TestAsStringSlice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   []string
		wantOK bool
	}{
		{"string slice", []string{"a", "b"}, []string{"a", "b"}, true},
		{"any slice from driver", []any{"Al-Ahmar", "Scarlet King"}, []string{"Al-Ahmar", "Scarlet King"}, true},
		{"empty any slice", []any{}, []string{}, true},
		{"mixed any slice", []any{"a", int64(1)}, nil, false},
		{"nil", nil, nil, false},
		{"string", "a", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AsStringSlice(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustHelpers(t *testing.T) {
	t.Parallel()

	s, err := MustString("x", "name")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	_, err = MustString(nil, "name")
	var tce *TypeConversionError
	require.True(t, errors.As(err, &tce))
	assert.Equal(t, "name", tce.Field)

	_, err = MustInt64("1", "count")
	assert.Error(t, err)

	_, err = MustBool(int64(1), "created")
	assert.Error(t, err)
}

func TestRecordReaders(t *testing.T) {
	t.Parallel()

	record := &db.Record{
		Keys:   []string{"name", "count", "created", "aliases", "label"},
		Values: []any{"Deshret", int64(3), true, []any{"Al-Ahmar"}, nil},
	}

	name, err := recordString(record, "name")
	require.NoError(t, err)
	assert.Equal(t, "Deshret", name)

	n, err := recordInt64(record, "count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	created, err := recordBool(record, "created")
	require.NoError(t, err)
	assert.True(t, created)

	aliases, err := recordStrings(record, "aliases")
	require.NoError(t, err)
	assert.Equal(t, []string{"Al-Ahmar"}, aliases)

	empty, err := recordStrings(record, "label")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = recordString(record, "missing")
	assert.Error(t, err)
}
