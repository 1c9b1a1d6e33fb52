package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementBandState holds one point per band update.
const MeasurementBandState = "band_state"

// WriteBandState records the numeric, boolean and string fields of a band
// update. Other value types are skipped. Nothing is written when no field
// survives or the client is closed.
//
// Example:
//
//	client.WriteBandState("urn:graylogic:thing:lamp-v1:...", "istate",
//	    map[string]any{"brightness": 40, "on": true}, time.Now())
func (c *Client) WriteBandState(thingID, band string, state map[string]any, ts time.Time) int {
	if !c.IsConnected() {
		return 0
	}

	fields := PointFields(state)
	if len(fields) == 0 {
		return 0
	}

	c.writer.WritePoint(write.NewPoint(
		MeasurementBandState,
		map[string]string{
			"thing_id": thingID,
			"band":     band,
		},
		fields,
		ts,
	))
	return len(fields)
}

// PointFields keeps the values InfluxDB can store as fields.
// Annotation keys starting with "@" are dropped.
func PointFields(state map[string]any) map[string]any {
	fields := make(map[string]any, len(state))
	for k, v := range state {
		if k == "" || k[0] == '@' {
			continue
		}
		switch val := v.(type) {
		case bool, string, float32, float64,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64:
			fields[k] = val
		}
	}
	return fields
}
