// Package ingest turns raw device records into stored readings: it
// normalizes field aliases, suppresses duplicate telemetry, and drives the
// rule evaluation and notification fan-out for accepted readings.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"procodus.dev/silowatch/internal/silo"
)

// ErrMalformedRecord is returned when a raw record cannot be normalized
// into a reading. The record is dropped; the cycle continues.
var ErrMalformedRecord = errors.New("malformed telemetry record")

// feedTimestampLayout is the layout the feed source declares for its
// created_at field.
const feedTimestampLayout = "2006-01-02T15:04:05Z"

// Field-name aliases per canonical attribute, in priority order: the first
// alias present in the record wins. Adding an alias is a data change here,
// not a code branch.
var (
	timestampAliases   = []string{"created_at", "timestamp", "time"}
	temperatureAliases = []string{"field1", "temperature", "temp_c", "temp"}
	humidityAliases    = []string{"field2", "humidity", "rh_pct", "rh"}
	gasAliases         = []string{"field3", "gas", "co2_ppm", "co2"}
	lumFlagAliases     = []string{"field5", "luminosity_alert", "lum_alert"}
	luxAliases         = []string{"field6", "lux", "light_lux"}
)

// Normalize maps a raw key-valued record into a canonical Reading. The
// timestamp is required; temperature and humidity default to zero when the
// alias is absent or empty but reject the record when present and
// non-numeric; gas, the luminosity flag and lux are optional and fall back
// to nil on bad data. The unmodified record is preserved in Raw.
func Normalize(siloID uuid.UUID, deviceID string, raw map[string]any) (*silo.Reading, error) {
	ts, err := parseTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	temp, err := requiredFloat(raw, temperatureAliases, "temperature")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	hum, err := requiredFloat(raw, humidityAliases, "humidity")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal raw record: %w", ErrMalformedRecord, err)
	}

	return &silo.Reading{
		SiloID:          siloID,
		DeviceID:        deviceID,
		Timestamp:       ts,
		Temperature:     &temp,
		Humidity:        &hum,
		Gas:             optionalFloat(raw, gasAliases),
		LuminosityAlert: optionalInt(raw, lumFlagAliases),
		Lux:             optionalFloat(raw, luxAliases),
		Raw:             datatypes.JSON(rawJSON),
	}, nil
}

// parseTimestamp extracts the sample time, trying the feed's declared
// layout first and RFC3339 as a fallback.
func parseTimestamp(raw map[string]any) (time.Time, error) {
	v, ok := firstPresent(raw, timestampAliases)
	if !ok {
		return time.Time{}, errors.New("timestamp field missing")
	}

	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp is not a string: %v", v)
	}

	if ts, err := time.Parse(feedTimestampLayout, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}
	return ts.UTC(), nil
}

// requiredFloat coerces the first present alias to a float. An absent or
// empty field defaults to zero (the source pads unsent channels that way);
// a present but non-numeric value rejects the record.
func requiredFloat(raw map[string]any, aliases []string, name string) (float64, error) {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return 0, nil
	}

	f, err := coerceFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func optionalFloat(raw map[string]any, aliases []string) *float64 {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return nil
	}

	f, err := coerceFloat(v)
	if err != nil {
		return nil
	}
	return &f
}

func optionalInt(raw map[string]any, aliases []string) *int {
	v, ok := firstPresent(raw, aliases)
	if !ok {
		return nil
	}

	f, err := coerceFloat(v)
	if err != nil {
		return nil
	}
	i := int(f)
	return &i
}

// firstPresent returns the first alias whose value is present and
// non-empty. Explicit nulls and empty strings count as absent.
func firstPresent(raw map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		v, ok := raw[alias]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// coerceFloat accepts JSON numbers and numeric strings; the feed reports
// every channel value as a string.
func coerceFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
