package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix roots all service topics unless configured otherwise.
const DefaultTopicPrefix = "irbridge"

// Topics provides builders for the service's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Gateway topics use the flat scheme {prefix}/{category}/broadlink/{mac}:
//
//	topics := mqtt.NewTopics("irbridge")
//	topics.GatewayCommand("34:ea:34:12:ab:cd")
//	// Returns: "irbridge/command/broadlink/34:ea:34:12:ab:cd"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix. An empty prefix selects
// DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Gateway Topics
// =============================================================================

// GatewayCommand returns the topic carrying codes to a gateway device.
//
// Example: irbridge/command/broadlink/34:ea:34:12:ab:cd
func (t Topics) GatewayCommand(mac string) string {
	return fmt.Sprintf("%s/command/broadlink/%s", t.prefix(), mac)
}

// GatewayRequest returns the topic carrying sensor queries to a gateway
// device.
//
// Example: irbridge/request/broadlink/34:ea:34:12:ab:cd
func (t Topics) GatewayRequest(mac string) string {
	return fmt.Sprintf("%s/request/broadlink/%s", t.prefix(), mac)
}

// GatewayState returns the topic on which a gateway device reports sensor
// readings.
//
// Example: irbridge/state/broadlink/34:ea:34:12:ab:cd
func (t Topics) GatewayState(mac string) string {
	return fmt.Sprintf("%s/state/broadlink/%s", t.prefix(), mac)
}

// GatewayHealth returns the topic on which a gateway device reports
// liveness.
//
// Example: irbridge/health/broadlink/34:ea:34:12:ab:cd
func (t Topics) GatewayHealth(mac string) string {
	return fmt.Sprintf("%s/health/broadlink/%s", t.prefix(), mac)
}

// =============================================================================
// Accessory Topics
// =============================================================================

// AccessoryState returns the retained state topic of an accessory.
//
// Example: irbridge/state/accessory/Bedroom%20AC
func (t Topics) AccessoryState(name string) string {
	return fmt.Sprintf("%s/state/accessory/%s", t.prefix(), EncodeTopicSegment(name))
}

// AccessorySet returns the topic that changes one characteristic of an
// accessory.
//
// Example: irbridge/set/accessory/Bedroom%20AC/targetTemperature
func (t Topics) AccessorySet(name, characteristic string) string {
	return fmt.Sprintf("%s/set/accessory/%s/%s", t.prefix(), EncodeTopicSegment(name), characteristic)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Example: irbridge/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllGatewayStates returns a pattern matching every gateway reading.
//
// Pattern: irbridge/state/broadlink/+
func (t Topics) AllGatewayStates() string {
	return fmt.Sprintf("%s/state/broadlink/+", t.prefix())
}

// AllGatewayHealth returns a pattern matching every gateway heartbeat.
//
// Pattern: irbridge/health/broadlink/+
func (t Topics) AllGatewayHealth() string {
	return fmt.Sprintf("%s/health/broadlink/+", t.prefix())
}

// AllAccessorySets returns a pattern matching every characteristic change
// request.
//
// Pattern: irbridge/set/accessory/+/+
func (t Topics) AllAccessorySets() string {
	return fmt.Sprintf("%s/set/accessory/+/+", t.prefix())
}

// AllTopics returns a pattern matching all service topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: irbridge/#
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}

// LastSegment returns the part of topic after the final slash.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// topicEscaper encodes the characters that would change a topic's level
// structure or read as wildcards.
var topicEscaper = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23", " ", "%20")

var topicUnescaper = strings.NewReplacer("%2F", "/", "%2B", "+", "%23", "#", "%20", " ", "%25", "%")

// EncodeTopicSegment makes name safe as a single topic level.
// Example: "Living Room/AC" → "Living%20Room%2FAC"
func EncodeTopicSegment(name string) string {
	return topicEscaper.Replace(name)
}

// DecodeTopicSegment reverses EncodeTopicSegment.
func DecodeTopicSegment(segment string) string {
	return topicUnescaper.Replace(segment)
}
