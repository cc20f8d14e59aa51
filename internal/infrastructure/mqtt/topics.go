package mqtt

import "fmt"

const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// Protocol is the bridge segment used in every topic of this bridge.
	Protocol = "w215"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.State("w215:192.168.1.20:power")
//	// "graylogic/state/w215/w215:192.168.1.20:power"
type Topics struct{}

// State returns the retained state topic of a feature.
func (Topics) State(featureExternalID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, featureExternalID)
}

// Health returns the bridge health topic.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// Command returns the command topic of a device.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// AllCommands returns the wildcard matching every device command topic.
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// Status returns the bridge connection status topic used for the LWT.
func (Topics) Status() string {
	return fmt.Sprintf("%s/system/%s/status", TopicPrefix, Protocol)
}

// DeviceIDFromCommand extracts the device ID from a command topic.
func (t Topics) DeviceIDFromCommand(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/command/%s/", TopicPrefix, Protocol)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}
