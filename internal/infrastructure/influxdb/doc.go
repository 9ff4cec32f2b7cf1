// Package influxdb delivers telemetry batches to an InfluxDB v2 bucket.
//
// It wraps the official influxdb-client-go v2 library. Every measurement of
// a batch becomes one point:
//
//	environment,metric=co2,site=greenhouse value=612 1700000000
//
// with second precision and the batch timestamp.
//
// # Usage
//
//	client, err := influxdb.New(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Send(ctx, batch) // satisfies pipeline.Sender
//
// # Error Handling
//
// Writes are blocking so that the retry buffer only drops a batch after the
// server has accepted it. The token should be supplied through
// SENSORLINK_INFLUXDB_TOKEN rather than the config file.
package influxdb
