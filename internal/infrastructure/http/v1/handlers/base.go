// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindOptionalJSON binds the body when there is one. Transitions accept an
// empty body.
func (h *BaseHandler) BindOptionalJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return h.BindJSON(c, obj)
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// PathID parses the :name path parameter.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	return h.ParseID(c, c.Param(name), name)
}

// ParseID parses a required id taken from the query or body.
func (h *BaseHandler) ParseID(c *gin.Context, value, field string) (id.ID, bool) {
	v, err := id.Parse(value)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("field", field))
		return id.Nil(), false
	}
	return v, true
}

// ActorID extracts the authenticated actor from request context.
func (h *BaseHandler) ActorID(c *gin.Context) string {
	return appctx.GetUserID(c.Request.Context())
}

// CompleteIdempotency stores the response under the request's key with the
// same status code and content type so a retry replays it byte for byte.
func (h *BaseHandler) CompleteIdempotency(c *gin.Context, statusCode int, contentType string, body []byte) {
	key, store, ok := middleware.IdempotencyFrom(c)
	if !ok {
		return
	}
	if err := store.Complete(c.Request.Context(), key, statusCode, contentType, body); err != nil {
		logger.Warn(c.Request.Context(), "idempotency completion not recorded", "key", key, "error", err)
	}
}

func (h *BaseHandler) respond(c *gin.Context, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.CompleteIdempotency(c, status, "application/json", body)
	c.Data(status, "application/json; charset=utf-8", body)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	h.respond(c, http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	h.respond(c, http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	// 204 must replay as 204 with empty body.
	h.CompleteIdempotency(c, http.StatusNoContent, "", nil)
	c.Status(http.StatusNoContent)
}

// optionalID parses an optional query id that binding already checked.
func optionalID(s string) *id.ID {
	v, err := id.ParseOptional(s)
	if err != nil {
		return nil
	}
	return v
}

// endOfDay makes a date-only upper bound inclusive.
func endOfDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	end := t.Add(24*time.Hour - time.Nanosecond)
	return &end
}
