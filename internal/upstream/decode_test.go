package upstream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnmarshalVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339z", `"2024-01-15T10:30:00Z"`, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"rfc3339_offset", `"2024-01-15T10:30:00+02:00"`, time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"rfc3339_millis", `"2024-01-15T10:30:00.500Z"`, time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC)},
		{"unix_seconds_number", `1705314600`, time.Unix(1705314600, 0).UTC()},
		{"unix_seconds_string", `"1705314600"`, time.Unix(1705314600, 0).UTC()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tc.in), &ts)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(ts.Time), "got %v want %v", ts.Time, tc.want)
		})
	}
}

func TestTimestampUnmarshalRejectsGarbage(t *testing.T) {
	var ts Timestamp
	err := json.Unmarshal([]byte(`"not-a-timestamp"`), &ts)
	assert.Error(t, err)
}

func TestTimestampUnmarshalNull(t *testing.T) {
	var ts Timestamp
	err := json.Unmarshal([]byte(`null`), &ts)
	require.NoError(t, err)
	assert.True(t, ts.Time.IsZero())
}
