package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ChangeMessage announces that one scope changed. It carries no ledger data;
// consumers reload the scope from its store.
type ChangeMessage struct {
	UserID    string    `json:"userId"`
	ProfileID string    `json:"profileId"`
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entityId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var errMissingScope = errors.New("change message without user or profile")

// NewChangeMessage stamps a message with the current time
func NewChangeMessage(userID, profileID, kind, entityID string) *ChangeMessage {
	return &ChangeMessage{
		UserID:    userID,
		ProfileID: profileID,
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message and rejects ones without a scope
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.ProfileID == "" {
		return nil, errMissingScope
	}
	return &msg, nil
}
