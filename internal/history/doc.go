// Package history keeps a record of what the bridge observed.
//
// Two kinds of events are kept: sensor readings delivered by accessory
// monitors and characteristic changes pushed to the host. Store writes
// them to the local SQLite database; Influx forwards them to InfluxDB.
// Recorders and Notifiers fan one event out to several sinks.
//
// Nothing here is read back into accessory state on start-up.
package history
