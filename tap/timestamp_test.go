package tap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int", 1700000000, 1700000000},
		{"int64", int64(1700000000), 1700000000},
		{"numeric string", "1700000000", 1700000000},
		{"iso with millis", "2023-11-14T22:13:20.000Z", 1700000000},
		{"iso without fraction", "2023-11-14T22:13:20Z", 1700000000},
		{"rfc3339 offset", "2023-11-14T23:13:20+01:00", 1700000000},
		{"float from state file", float64(1700000000), 1700000000},
		{"json number", json.Number("1700000000"), 1700000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTimestamp(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTimestamp_Invalid(t *testing.T) {
	for _, value := range []any{"not-a-date", 1.5, true, nil, "2023-13-45"} {
		_, err := NormalizeTimestamp(value)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, "value %v", value)
	}
}
