package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// The workflow engines share one shape for reads and simple transitions; these
// helpers build the gin handlers from the service method.

type getFunc[T any] func(ctx context.Context, docID id.ID) (T, error)

type noteFunc[T any] func(ctx context.Context, docID id.ID, actorID, note string) (T, error)

// getDocument handles GET /{documents}/:id.
func getDocument[T any](h *BaseHandler, get getFunc[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := h.PathID(c, "id")
		if !ok {
			return
		}
		doc, err := get(c.Request.Context(), docID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, doc)
	}
}

// noteTransition handles POST /{documents}/:id/{action} with an optional
// {"note": ...} body.
func noteTransition[T any](h *BaseHandler, fn noteFunc[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := h.PathID(c, "id")
		if !ok {
			return
		}
		var req dto.NoteRequest
		if !h.BindOptionalJSON(c, &req) {
			return
		}
		doc, err := fn(c.Request.Context(), docID, h.ActorID(c), req.Note)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, doc)
	}
}

// reasonTransition handles cancel and reject with an optional {"reason": ...}
// body.
func reasonTransition[T any](h *BaseHandler, fn noteFunc[T]) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID, ok := h.PathID(c, "id")
		if !ok {
			return
		}
		var req dto.ReasonRequest
		if !h.BindOptionalJSON(c, &req) {
			return
		}
		doc, err := fn(c.Request.Context(), docID, h.ActorID(c), req.Reason)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, doc)
	}
}

// listFilter maps the shared list query onto the domain filter.
func listFilter(req dto.DocumentListRequest) domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = req.Search
	f.DateFrom = req.From
	f.DateTo = endOfDay(req.To)
	if req.Limit > 0 {
		f.Limit = req.Limit
	}
	f.Offset = req.Offset
	f.Normalize()
	return f
}

func listResponse[T any](res domain.ListResult[T]) dto.ListResponse {
	items := res.Items
	if items == nil {
		items = []T{}
	}
	return dto.ListResponse{Items: items, TotalCount: res.TotalCount, Limit: res.Limit, Offset: res.Offset}
}
