// Package statecache mirrors accessory characteristics into redis.
//
// Each accessory owns one hash at {key_prefix}{name}; every field is a
// characteristic holding its JSON-encoded value. The hash expires when no
// change arrived within the configured TTL, so a stopped bridge leaves no
// stale state behind for long.
//
// The mirror is write-only from the bridge's point of view: accessory state
// is never restored from it.
package statecache
