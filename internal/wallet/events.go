package wallet

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"moff.io/moff-wallet/internal/databus"
	"moff.io/moff-wallet/pkg/log"
)

// ActivityTopic is the databus topic wallet activity is published to.
const ActivityTopic = "moff-wallet-activity"

type ActivityKind string

const (
	SessionApprovedActivity     ActivityKind = "session_approved"
	SessionRejectedActivity     ActivityKind = "session_rejected"
	SessionResumedActivity      ActivityKind = "session_resumed"
	RequestStagedActivity       ActivityKind = "request_staged"
	RequestDroppedActivity      ActivityKind = "request_dropped"
	RequestApprovedActivity     ActivityKind = "request_approved"
	RequestRejectedActivity     ActivityKind = "request_rejected"
	SessionDisconnectedActivity ActivityKind = "session_disconnected"
)

// Activity is one wallet decision, as seen by downstream consumers.
type Activity struct {
	ID           string       `json:"id"`
	Kind         ActivityKind `json:"kind"`
	Address      string       `json:"address,omitempty"`
	SessionTopic string       `json:"session_topic,omitempty"`
	RequestID    int64        `json:"request_id,omitempty"`
	Method       string       `json:"method,omitempty"`
	Peer         string       `json:"peer,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	Timestamp    int64        `json:"timestamp"`
}

func newActivity(kind ActivityKind) *Activity {
	return &Activity{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (a *Activity) Serialize() []byte {
	data, _ := json.Marshal(a)
	return data
}

func (a *Activity) Topic() string {
	return ActivityTopic
}

// EventPublisher delivers activity to the databus.
type EventPublisher interface {
	Publish(e databus.Event) error
}

func (w *Wallet) publish(a *Activity) {
	if w.events == nil {
		return
	}
	if a.Address == "" {
		a.Address = w.State().Address
	}
	if err := w.events.Publish(a); err != nil {
		log.Warnf("wallet - publish %v activity: %v", a.Kind, err)
	}
}
