// Package request defines the JSON bodies accepted by the local agent API.
package request

import (
	"encoding/json"
)

// EnqueueRequest is the body of POST /api/v1/offline/queue
type EnqueueRequest struct {
	Endpoint       string            `json:"endpoint" binding:"required"`
	Method         string            `json:"method" binding:"required,oneof=GET POST PUT DELETE get post put delete"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty" binding:"omitempty,max=128"`
}

// LoginRequest is the body of POST /api/v1/session
type LoginRequest struct {
	Token string `json:"token" binding:"required"`
}
