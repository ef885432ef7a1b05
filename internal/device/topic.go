package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// topicSegments is the exact number of segments in a device topic.
const topicSegments = 3

// DecodedTopic holds the identities recovered from a device telemetry topic.
type DecodedTopic struct {
	UserID     string
	DeviceID   string
	DeviceName string
}

// ComposeTopic builds the telemetry topic for a device:
// {user_id}/{device_id}/{name}.
//
// Example: "11111111-.../22222222-.../sensor1"
func ComposeTopic(userID, deviceID, name string) string {
	return fmt.Sprintf("%s/%s/%s", userID, deviceID, name)
}

// DecomposeTopic splits a telemetry topic back into its identities.
//
// A valid topic has exactly three '/'-separated segments; the first two
// must be UUIDs and the name segment must be non-empty. Any other shape
// is a decode failure - there are no partial results.
//
// Returns:
//   - DecodedTopic: The recovered user id, device id, and device name
//   - error: ErrInvalidTopic (wrapped) if the topic cannot be decoded
func DecomposeTopic(topic string) (DecodedTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicSegments {
		return DecodedTopic{}, fmt.Errorf("%w: expected %d segments, got %d",
			ErrInvalidTopic, topicSegments, len(parts))
	}

	userID, err := uuid.Parse(parts[0])
	if err != nil {
		return DecodedTopic{}, fmt.Errorf("%w: bad user id %q", ErrInvalidTopic, parts[0])
	}

	deviceID, err := uuid.Parse(parts[1])
	if err != nil {
		return DecodedTopic{}, fmt.Errorf("%w: bad device id %q", ErrInvalidTopic, parts[1])
	}

	if parts[2] == "" {
		return DecodedTopic{}, fmt.Errorf("%w: empty device name", ErrInvalidTopic)
	}

	return DecodedTopic{
		UserID:     userID.String(),
		DeviceID:   deviceID.String(),
		DeviceName: parts[2],
	}, nil
}

// ValidTopic reports whether a composed topic is usable for MQTT
// subscription: decodable and free of wildcard characters.
func ValidTopic(topic string) error {
	if _, err := DecomposeTopic(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in device topics", ErrInvalidTopic)
	}
	return nil
}
