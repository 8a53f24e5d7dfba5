// Package influxdb writes the bridge's time-series history to InfluxDB v2.
//
// Four measurements are written, all tagged with the accessory name and
// the site ID:
//
//	sensor_reading   kind=temperature|humidity   value
//	accessory_state  characteristic=...          value (booleans as 0/1)
//	transmission     result=ok|error             count
//	auto_transition  action=on|off               count
//
// Writes go through the library's non-blocking batched WriteAPI, so a slow
// or unreachable server never stalls an accessory. Failed batches are
// reported to the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorReading("Bedroom AC", "temperature", 21.5)
package influxdb
