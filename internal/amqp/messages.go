package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SyncRequestMessage asks a worker to sync providers for one user.
// An empty Services list means every provider.
type SyncRequestMessage struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Services    []string  `json:"services,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewSyncRequestMessage creates a new sync request with a fresh id
func NewSyncRequestMessage(userID string, services []string) *SyncRequestMessage {
	return &SyncRequestMessage{
		ID:          uuid.NewString(),
		UserID:      userID,
		Services:    services,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestMessageFromJSON decodes a message and checks it names a user.
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("sync request without user_id")
	}
	return &msg, nil
}
