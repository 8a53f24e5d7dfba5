// Package metrics exposes the bridge's Prometheus collectors.
//
// Collectors live on a private registry served by Handler, so nothing
// leaks into the global default registry:
//
//	irbridge_transmissions_total{accessory,result}
//	irbridge_sensor_reading{accessory,kind}
//	irbridge_auto_transitions_total{accessory,action}
//	irbridge_pending_callbacks{accessory,kind}
//
// Go runtime and process collectors are registered alongside them.
//
// Recorder also forwards transmissions and automatic transitions to an
// optional Timeline (the InfluxDB client) so they can be charted next to
// the sensor history.
package metrics
