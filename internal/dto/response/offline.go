package response

import (
	"time"

	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/offline/syncer"
	"github.com/jrjohn/arcana-pos-go/internal/session"
)

// QueueResponse lists queued or failed requests
type QueueResponse struct {
	Items []offline.QueuedRequest `json:"items"`
	Count int                     `json:"count"`
}

// NewQueueResponse wraps items, substituting an empty slice for nil
func NewQueueResponse(items []offline.QueuedRequest) QueueResponse {
	if items == nil {
		items = []offline.QueuedRequest{}
	}
	return QueueResponse{Items: items, Count: len(items)}
}

// SyncStatus reports the engine phase and the last drain
type SyncStatus struct {
	syncer.Status
	HaltOnFailure bool `json:"haltOnFailure"`
}

// NetworkStatus reports the most recent connectivity observation
type NetworkStatus struct {
	network.State
	Online bool `json:"online"`
}

// NewNetworkStatus derives the online flag from state
func NewNetworkStatus(state network.State) NetworkStatus {
	return NetworkStatus{State: state, Online: state.IsOnline()}
}

// StatusResponse is the body of GET /api/v1/offline/status and the event stream snapshot
type StatusResponse struct {
	Pending int           `json:"pending"`
	Failed  int           `json:"failed"`
	Network NetworkStatus `json:"network"`
	Sync    SyncStatus    `json:"sync"`
}

// SessionResponse describes the signed-in user
type SessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        uint       `json:"userId,omitempty"`
	Username      string     `json:"username,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// NewSessionResponse builds a SessionResponse from the manager's claims
func NewSessionResponse(claims session.Claims, ok bool) SessionResponse {
	if !ok {
		return SessionResponse{}
	}
	resp := SessionResponse{
		Authenticated: true,
		UserID:        claims.UserID,
		Username:      claims.Username,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	return resp
}
