package notification

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle transition of a notification.
type EventType string

const (
	EventSent      EventType = "notification.sent"
	EventFailed    EventType = "notification.failed"
	EventRead      EventType = "notification.read"
	EventDismissed EventType = "notification.dismissed"
)

// Event is a plain data record describing a state transition. Events are
// appended to the aggregate's outbox by the transition methods and drained
// by the caller after the transition has been persisted; subscriber code is
// never invoked from inside the aggregate.
type Event struct {
	Type           EventType `json:"type"`
	NotificationID uuid.UUID `json:"notification_id"`
	RecipientID    string    `json:"recipient_id"`
	Channel        Channel   `json:"channel"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (n *Notification) record(t EventType, reason string) {
	n.events = append(n.events, Event{
		Type:           t,
		NotificationID: n.id,
		RecipientID:    n.recipientID,
		Channel:        n.channel,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	})
}

// PullEvents drains and returns the pending outbox events.
func (n *Notification) PullEvents() []Event {
	events := n.events
	n.events = nil
	return events
}
