// Package influxdb records band history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: a ping on connect,
// a batching non-blocking write API, and an error callback for failures
// that surface after the write call returned.
//
// Each band update becomes one point in the band_state measurement, tagged
// with thing_id and band, carrying the band's scalar values as fields.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history not configured
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Error("influxdb write failed", "error", err)
//	})
package influxdb
