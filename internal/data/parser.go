// internal/data/parser.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNoMetrics = errors.New("payload carries no numeric measurements")

// identity keys are never treated as measurements
var identityKeys = map[string]bool{
	"id":         true,
	"timestamp":  true,
	"topic":      true,
	"device_id":  true,
	"sensor_id":  true,
	"device":     true,
	"source":     true,
	"confidence": true,
}

// Parse decodes a flat JSON payload into a Reading. Every numeric field that is not an
// identity key becomes a measurement; a nested "values" object is accepted as well.
func Parse(rawData []byte, source string) (*Reading, error) {
	var genericPayload map[string]interface{}
	if err := json.Unmarshal(rawData, &genericPayload); err != nil {
		return nil, fmt.Errorf("unmarshal reading: %w", err)
	}

	reading := &Reading{
		Timestamp: time.Now().UTC(), // overwritten below when the payload carries one
		Source:    source,
		Values:    make(map[Quantity]float64),
	}

	if nested, ok := genericPayload["values"].(map[string]interface{}); ok {
		collectMetrics(nested, reading.Values)
	}
	collectMetrics(genericPayload, reading.Values)

	if id, ok := genericPayload["device_id"].(string); ok {
		reading.DeviceID = id
	} else if id, ok := genericPayload["sensor_id"].(string); ok {
		reading.DeviceID = id
	} else if id, ok := genericPayload["device"].(string); ok {
		reading.DeviceID = id
	}

	if ts, ok := parseTimestamp(genericPayload["timestamp"]); ok {
		reading.Timestamp = ts
	}

	if len(reading.Values) == 0 {
		return nil, ErrNoMetrics
	}
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	return reading, nil
}

func collectMetrics(payload map[string]interface{}, into map[Quantity]float64) {
	for key, value := range payload {
		if identityKeys[key] {
			continue
		}
		// encoding/json decodes every number as float64
		if f, ok := value.(float64); ok {
			into[Quantity(key)] = f
		}
	}
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), true
			}
		}
	case float64:
		return time.UnixMilli(int64(ts)).UTC(), true
	}
	return time.Time{}, false
}
