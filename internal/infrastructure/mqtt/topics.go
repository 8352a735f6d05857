package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root used when no prefix is configured.
const DefaultTopicPrefix = "fancontrol"

// Topics provides builders for fancontrold MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("fancontrol")
//	stateTopic := topics.State("Fan", "/hwmon/nct6798/fan/1")
//	// Returns: "fancontrol/state/fan/hwmon-nct6798-fan-1"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// State returns the topic for a sensor reading.
//
// Example: fancontrol/state/temperature/hwmon-k10temp-temp-1
func (t Topics) State(kind, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.Prefix, strings.ToLower(kind), Slug(id))
}

// Control returns the topic for control override changes.
//
// Example: fancontrol/control/hwmon-nct6798-pwm-1
func (t Topics) Control(id string) string {
	return fmt.Sprintf("%s/control/%s", t.Prefix, Slug(id))
}

// Hardware returns the retained topic carrying the identity snapshot.
//
// Example: fancontrol/hardware
func (t Topics) Hardware() string {
	return fmt.Sprintf("%s/hardware", t.Prefix)
}

// SystemStatus returns the daemon status topic used for online, offline and LWT.
//
// Example: fancontrol/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Prefix)
}

// AllStates returns a pattern matching every sensor reading.
//
// Pattern: fancontrol/state/#
func (t Topics) AllStates() string {
	return fmt.Sprintf("%s/state/#", t.Prefix)
}

// AllTopics returns a pattern matching all fancontrold topics.
//
// Pattern: fancontrol/#
func (t Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", t.Prefix)
}

// Slug turns an entry identifier into a single topic level. Separators and
// MQTT wildcards become '-'.
//
// Example: "/hwmon/nct6798@platform/pwm/1" -> "hwmon-nct6798@platform-pwm-1"
func Slug(id string) string {
	id = strings.Trim(id, "/")
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ':
			return '-'
		}
		return r
	}, id)
}
