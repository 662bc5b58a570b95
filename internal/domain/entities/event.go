package entities

import (
	"github.com/google/uuid"
)

// EventType names the operation that produced an event.
type EventType string

const (
	EventServiceCreated    EventType = "ServiceCreated"
	EventServiceUpdated    EventType = "ServiceUpdated"
	EventKeyCreated        EventType = "KeyCreated"
	EventKeyValidated      EventType = "KeyValidated"
	EventPermissionChecked EventType = "PermissionChecked"
	EventUsageRecorded     EventType = "UsageRecorded"
	EventKeyUpdated        EventType = "KeyUpdated"
	EventKeyRevoked        EventType = "KeyRevoked"
	EventKeyClosed         EventType = "KeyClosed"
)

// Event is an advisory audit record emitted after a successful commit.
// Only the fields relevant to Type are set.
type Event struct {
	Type       EventType  `json:"type"`
	ServiceID  uuid.UUID  `json:"serviceId"`
	Owner      uuid.UUID  `json:"owner,omitempty"`
	KeyHash    *KeyHash   `json:"keyHash,omitempty"`
	OccurredAt int64      `json:"occurredAt"`
	Service    *Service   `json:"service,omitempty"`
	Key        *ApiKey    `json:"key,omitempty"`
	Required   Permission `json:"required,omitempty"`
	Granted    bool       `json:"granted,omitempty"`
	Remaining  uint32     `json:"remaining,omitempty"`
	Refunded   uint64     `json:"refunded,omitempty"`
	Previous   *ApiKey    `json:"previous,omitempty"`
}

// ServiceEvent builds an event carrying a service snapshot.
func ServiceEvent(t EventType, svc *Service, now int64) Event {
	snapshot := *svc
	return Event{
		Type:       t,
		ServiceID:  svc.ID,
		Owner:      svc.Owner,
		OccurredAt: now,
		Service:    &snapshot,
	}
}

// KeyEvent builds an event carrying a key snapshot.
func KeyEvent(t EventType, key *ApiKey, now int64) Event {
	snapshot := *key
	hash := key.KeyHash
	return Event{
		Type:       t,
		ServiceID:  key.ServiceID,
		KeyHash:    &hash,
		OccurredAt: now,
		Key:        &snapshot,
	}
}
