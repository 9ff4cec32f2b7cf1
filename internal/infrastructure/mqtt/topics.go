package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the topics of one node. Using these helpers keeps topic
// naming consistent between the sender and the status reporter.
//
//	topics := mqtt.Topics{Prefix: "sensorlink", Site: "greenhouse"}
//	topics.Telemetry() // "sensorlink/telemetry/greenhouse"
type Topics struct {
	Prefix string
	Site   string
}

// Telemetry returns the topic batches are published to (not retained).
//
// Example: sensorlink/telemetry/greenhouse
func (t Topics) Telemetry() string {
	return fmt.Sprintf("%s/telemetry/%s", t.Prefix, t.Site)
}

// Status returns the retained per-cycle status topic.
//
// Example: sensorlink/status/greenhouse
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status/%s", t.Prefix, t.Site)
}

// Availability returns the retained online/offline topic that also carries
// the Last Will and Testament.
//
// Example: sensorlink/availability/greenhouse
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/availability/%s", t.Prefix, t.Site)
}

// Validate checks that both parts are usable in a publish topic.
func (t Topics) Validate() error {
	if err := validateTopicSegment("prefix", t.Prefix); err != nil {
		return err
	}
	return validateTopicSegment("site", t.Site)
}

// validateTopicSegment rejects empty segments and the characters MQTT
// reserves for subscriptions.
func validateTopicSegment(what, s string) error {
	if s == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidTopic, what)
	}
	if strings.ContainsAny(s, "+#\x00") {
		return fmt.Errorf("%w: %s %q contains a wildcard", ErrInvalidTopic, what, s)
	}
	return nil
}
