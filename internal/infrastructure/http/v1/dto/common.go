// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"
)

// --- Pagination ---

// PaginationRequest contains offset pagination parameters.
type PaginationRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// DateRange bounds list queries by business date.
type DateRange struct {
	From *time.Time `form:"from" time_format:"2006-01-02"`
	To   *time.Time `form:"to" time_format:"2006-01-02"`
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// ItemsResponse wraps an unpaged list.
type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

// NewItemsResponse never renders a null list.
func NewItemsResponse[T any](items []T) ItemsResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ItemsResponse[T]{Items: items}
}

// --- Action requests ---

// NoteRequest is the body of transitions that only carry a note.
type NoteRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// ReasonRequest is the body of cancel and reject.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
