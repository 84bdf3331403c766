package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current conversion job payload version.
const MessageVersion = 1

// Message is a conversion job keyed by work id.
type Message struct {
	WorkID     string `json:"workId"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage builds a conversion job for workID stamped at now.
func NewMessage(workID, requestID string, now time.Time) Message {
	return Message{
		WorkID:     workID,
		RequestID:  requestID,
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
