package webhook

import (
	"encoding/json"
	"fmt"
)

const (
	ObjectTypeActivity = "activity"
	AspectCreate       = "create"
)

// Event is a push notification. It only names the changed object; the full
// activity must be fetched.
type Event struct {
	ObjectType     string         `json:"object_type"`
	ObjectID       int64          `json:"object_id"`
	AspectType     string         `json:"aspect_type"`
	OwnerID        int64          `json:"owner_id"`
	SubscriptionID int64          `json:"subscription_id"`
	EventTime      int64          `json:"event_time"`
	Updates        map[string]any `json:"updates,omitempty"`
}

// DecodeEvent parses a delivery body.
func DecodeEvent(body []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("decode webhook event: %w", err)
	}
	return event, nil
}

// TriggersIngestion reports whether the event announces a new activity.
func (e Event) TriggersIngestion() bool {
	return e.ObjectType == ObjectTypeActivity && e.AspectType == AspectCreate && e.ObjectID != 0
}

// DedupeKey identifies the event across redeliveries.
func (e Event) DedupeKey() string {
	return fmt.Sprintf("webhook:%s:%d:%s", e.ObjectType, e.ObjectID, e.AspectType)
}
