// Package audit records who asked for which characteristic change.
//
// Every change request arriving over the REST API or an MQTT set topic is
// written to the audit_log table with its source, the authenticated
// subject (API only) and the accessory's verdict. History tables record
// what the accessories did; the audit log records what they were asked to
// do, including rejected requests.
package audit
