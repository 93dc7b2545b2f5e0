// Package http exposes the offline queue, sync engine and session to the
// register UI and operator tools over the local agent API.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jrjohn/arcana-pos-go/internal/dto/request"
	"github.com/jrjohn/arcana-pos-go/internal/dto/response"
	"github.com/jrjohn/arcana-pos-go/internal/network"
	"github.com/jrjohn/arcana-pos-go/internal/offline"
	"github.com/jrjohn/arcana-pos-go/internal/offline/syncer"
	apperrors "github.com/jrjohn/arcana-pos-go/pkg/errors"
)

// OfflineService is the part of *offline.Service the controller uses
type OfflineService interface {
	EnqueueRequest(ctx context.Context, req offline.Request) (*offline.QueuedRequest, error)
	PendingCount() int
	Queue() []offline.QueuedRequest
	FailedRequests() []offline.QueuedRequest
	SyncNow(ctx context.Context) (offline.SyncResult, error)
	ClearQueue(ctx context.Context)
	DismissFailed(ctx context.Context, id string)
}

// SyncStatus reports the engine state; *syncer.Engine satisfies it
type SyncStatus interface {
	Status() syncer.Status
	HaltOnFailure() bool
}

// NetworkState reports connectivity; *network.Monitor satisfies it
type NetworkState interface {
	State() network.State
}

// OfflineController handles the /offline endpoints
type OfflineController struct {
	service OfflineService
	engine  SyncStatus
	network NetworkState
	events  gin.HandlerFunc
}

// NewOfflineController creates a new OfflineController. events serves the
// websocket event stream and may be nil.
func NewOfflineController(service OfflineService, engine SyncStatus, network NetworkState, events gin.HandlerFunc) *OfflineController {
	return &OfflineController{
		service: service,
		engine:  engine,
		network: network,
		events:  events,
	}
}

// RegisterRoutes registers the offline routes
func (c *OfflineController) RegisterRoutes(router *gin.RouterGroup) {
	routes := router.Group("/offline")
	{
		routes.GET("/status", c.GetStatus)
		routes.POST("/sync", c.SyncNow)

		routes.GET("/queue", c.GetQueue)
		routes.POST("/queue", c.Enqueue)
		routes.DELETE("/queue", c.ClearQueue)

		routes.GET("/failed", c.GetFailed)
		routes.DELETE("/failed/:id", c.DismissFailed)

		if c.events != nil {
			routes.GET("/events", c.events)
		}
	}
}

// Snapshot assembles the current status; it is also the first event stream frame
func (c *OfflineController) Snapshot() response.StatusResponse {
	return response.StatusResponse{
		Pending: c.service.PendingCount(),
		Failed:  len(c.service.FailedRequests()),
		Network: response.NewNetworkStatus(c.network.State()),
		Sync: response.SyncStatus{
			Status:        c.engine.Status(),
			HaltOnFailure: c.engine.HaltOnFailure(),
		},
	}
}

// GetStatus returns pending count, connectivity and the last drain
// @Summary Offline status
// @Tags Offline
// @Produce json
// @Success 200 {object} response.ApiResponse[response.StatusResponse]
// @Router /api/v1/offline/status [get]
func (c *OfflineController) GetStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, response.NewSuccessWithData(c.Snapshot()))
}

// GetQueue lists pending requests in replay order
// @Summary List pending requests
// @Tags Offline
// @Produce json
// @Success 200 {object} response.ApiResponse[response.QueueResponse]
// @Router /api/v1/offline/queue [get]
func (c *OfflineController) GetQueue(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, response.NewSuccessWithData(response.NewQueueResponse(c.service.Queue())))
}

// Enqueue queues a request on behalf of a UI that lost its connection
// @Summary Queue a request
// @Tags Offline
// @Accept json
// @Produce json
// @Param request body request.EnqueueRequest true "Request to replay"
// @Success 202 {object} response.ApiResponse[offline.QueuedRequest]
// @Failure 400 {object} response.ApiResponse[any]
// @Router /api/v1/offline/queue [post]
func (c *OfflineController) Enqueue(ctx *gin.Context) {
	var req request.EnqueueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.NewError[any](apperrors.CodeValidationError, err.Error()))
		return
	}

	method, err := offline.ParseMethod(req.Method)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, response.NewError[any](apperrors.CodeValidationError, err.Error()))
		return
	}

	opts := []offline.RequestOption{offline.WithHeaders(req.Headers)}
	if req.IdempotencyKey != "" {
		opts = append(opts, offline.WithIdempotencyKey(req.IdempotencyKey))
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	queued, err := offline.NewRequest(method, req.Endpoint, payload, opts...)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, response.NewError[any](apperrors.CodeValidationError, err.Error()))
		return
	}

	entry, err := c.service.EnqueueRequest(ctx.Request.Context(), queued)
	if err != nil {
		resp, status := response.FromError[any](err)
		ctx.JSON(status, resp)
		return
	}

	ctx.JSON(http.StatusAccepted, response.NewSuccess(*entry, "request queued"))
}

// ClearQueue discards every pending and failed request
// @Summary Clear the queue
// @Tags Offline
// @Produce json
// @Success 200 {object} response.ApiResponse[any]
// @Router /api/v1/offline/queue [delete]
func (c *OfflineController) ClearQueue(ctx *gin.Context) {
	c.service.ClearQueue(ctx.Request.Context())
	ctx.JSON(http.StatusOK, response.NewSuccess[any](nil, "queue cleared"))
}

// GetFailed lists requests dropped after exhausting their retries
// @Summary List failed requests
// @Tags Offline
// @Produce json
// @Success 200 {object} response.ApiResponse[response.QueueResponse]
// @Router /api/v1/offline/failed [get]
func (c *OfflineController) GetFailed(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, response.NewSuccessWithData(response.NewQueueResponse(c.service.FailedRequests())))
}

// DismissFailed acknowledges a failed request
// @Summary Dismiss a failed request
// @Tags Offline
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.ApiResponse[any]
// @Router /api/v1/offline/failed/{id} [delete]
func (c *OfflineController) DismissFailed(ctx *gin.Context) {
	c.service.DismissFailed(ctx.Request.Context(), ctx.Param("id"))
	ctx.JSON(http.StatusOK, response.NewSuccess[any](nil, "failed request dismissed"))
}

// SyncNow runs a drain and returns its result
// @Summary Sync now
// @Tags Offline
// @Produce json
// @Success 200 {object} response.ApiResponse[offline.SyncResult]
// @Failure 409 {object} response.ApiResponse[offline.SyncResult]
// @Failure 503 {object} response.ApiResponse[offline.SyncResult]
// @Router /api/v1/offline/sync [post]
func (c *OfflineController) SyncNow(ctx *gin.Context) {
	result, err := c.service.SyncNow(ctx.Request.Context())
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, response.NewSuccess(result, "sync finished"))
	case errors.Is(err, syncer.ErrSyncInProgress):
		resp := response.NewError[offline.SyncResult](apperrors.CodeConflict, "sync already in progress")
		resp.Data = result
		ctx.JSON(http.StatusConflict, resp)
	case errors.Is(err, syncer.ErrOffline):
		resp := response.NewError[offline.SyncResult](apperrors.CodeServiceUnavailable, "device is offline")
		resp.Data = result
		ctx.JSON(http.StatusServiceUnavailable, resp)
	default:
		resp, status := response.FromError[offline.SyncResult](err)
		ctx.JSON(status, resp)
	}
}
