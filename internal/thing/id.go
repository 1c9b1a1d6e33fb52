package thing

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Well-known keys.
const (
	// MetaDeviceID is the bridge-local device identifier.
	MetaDeviceID = "iot:device-id"

	// MetaThingID is the universal Thing id.
	MetaThingID = "iot:thing-id"

	// MetaModelID is the model code of the binding that produced the Thing.
	MetaModelID = "iot:model-id"

	// ConnectionReachable lives in the connection band.
	ConnectionReachable = "reachable"

	// AnnotationTimestamp carries a band's timestamp through record stores.
	AnnotationTimestamp = "@timestamp"
)

// idPrefix starts every universal Thing id.
const idPrefix = "urn:graylogic:thing:"

// runnerNamespace seeds the per-runner UUID namespace.
var runnerNamespace = uuid.NewMD5(uuid.NameSpaceURL, []byte("https://graylogic.dev/ns/runner"))

// MakeID returns the universal id for a device.
//
// The result depends only on its three inputs, so rediscovering the same
// device on the same runner yields the same id, and a different runner
// yields a different one.
func MakeID(localID, modelCode, runnerID string) string {
	ns := uuid.NewMD5(runnerNamespace, []byte(runnerID))
	u := uuid.NewMD5(ns, []byte(modelCode+"\x00"+localID))
	return fmt.Sprintf("%s%s:%s", idPrefix, modelCode, u)
}

// LocalID extracts the bridge-local device id from compacted bridge
// metadata. Without an explicit device id, a canonical encoding of the
// metadata stands in, so two bridges reporting identical metadata are
// treated as the same device.
func LocalID(meta map[string]any) string {
	if id, ok := meta[MetaDeviceID].(string); ok && id != "" {
		return id
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]any, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]any{k, meta[k]})
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Sprintf("%v", ordered)
	}
	return string(data)
}
