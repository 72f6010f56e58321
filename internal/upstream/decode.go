package upstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp decodes the upstream API's several timestamp representations
// into a single UTC time.Time: ISO-8601 with trailing Z, ISO with a numeric
// offset, either with optional milliseconds, and numeric Unix seconds as
// either a JSON number or a decimal string. Unparseable input is a decode
// failure, never a silent zero value.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		t.Time = time.Time{}
		return nil
	}

	// Numeric Unix seconds, unquoted.
	if trimmed != "" && trimmed[0] != '"' {
		f, err := strconv.ParseFloat(trimmed, 64)
		if err == nil {
			t.Time = unixSecondsToTime(f).UTC()
			return nil
		}
		return fmt.Errorf("parse numeric timestamp %q: %w", trimmed, err)
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal timestamp string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}

	// Decimal-string Unix seconds.
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "-T:") {
		t.Time = unixSecondsToTime(f).UTC()
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func unixSecondsToTime(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
