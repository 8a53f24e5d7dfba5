// Package hostmqtt binds accessories to MQTT for home automation hosts.
//
// Every characteristic change is merged into a per-accessory snapshot and
// published retained on {prefix}/state/accessory/{name}. Hosts change a
// characteristic by publishing its new value on
// {prefix}/set/accessory/{name}/{characteristic}. Names are escaped with
// mqtt.EncodeTopicSegment.
//
// Set payloads are JSON values (true, 21.5, "auto"). A payload that is not
// JSON is passed on as a plain string, so "on" and "off" work from a shell.
package hostmqtt
