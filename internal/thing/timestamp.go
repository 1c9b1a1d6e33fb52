package thing

import "time"

// TimestampLayout is the wire form of AnnotationTimestamp values.
const TimestampLayout = time.RFC3339Nano

// FormatTimestamp renders ts for an AnnotationTimestamp value.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}

// SplitTimestamp removes the timestamp annotation from values and returns
// the remaining keys with the parsed time. A missing or unparsable
// annotation yields a zero time.
func SplitTimestamp(values map[string]any) (map[string]any, time.Time) {
	raw, ok := values[AnnotationTimestamp]
	if !ok {
		return values, time.Time{}
	}

	rest := make(map[string]any, len(values)-1)
	for k, v := range values {
		if k != AnnotationTimestamp {
			rest[k] = v
		}
	}

	var ts time.Time
	switch v := raw.(type) {
	case string:
		ts, _ = time.Parse(TimestampLayout, v)
	case time.Time:
		ts = v
	}
	return rest, ts
}
