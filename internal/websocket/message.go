// Package websocket streams offline-queue, connectivity and sync events to UI
// clients connected to the local agent, so "N pending changes" badges update
// without polling.
package websocket

import (
	"time"

	"github.com/google/uuid"
)

// MessageType names an event pushed to clients
type MessageType string

const (
	MessageTypeQueue   MessageType = "queue"
	MessageTypeNetwork MessageType = "network"
	MessageTypeSync    MessageType = "sync"
	MessageTypeHello   MessageType = "hello"
)

// Message is one JSON frame sent to clients
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Event     string      `json:"event,omitempty"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage creates a message with a fresh id
func NewMessage(msgType MessageType, event string, data any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Event:     event,
		Data:      data,
		Timestamp: time.Now(),
	}
}
