package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockRequestHandler handles HTTP requests for sub-branch stock requests.
type StockRequestHandler struct {
	*BaseHandler
	service *stock_request.Service
	policy  GrantPolicy
}

// NewStockRequestHandler creates a new stock request handler.
func NewStockRequestHandler(base *BaseHandler, service *stock_request.Service, policy GrantPolicy) *StockRequestHandler {
	return &StockRequestHandler{BaseHandler: base, service: service, policy: policy}
}

// RegisterRoutes mounts the stock request endpoints on rg.
func (h *StockRequestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", getDocument(h.BaseHandler, h.service.Get))
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/reject", reasonTransition(h.BaseHandler, h.service.Reject))
	rg.POST("/:id/fulfill", h.Fulfill)
	rg.POST("/:id/cancel", reasonTransition(h.BaseHandler, h.service.Cancel))
}

// List handles GET /stock-requests
func (h *StockRequestHandler) List(c *gin.Context) {
	var req dto.DocumentListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := stock_request.ListFilter{
		ListFilter: listFilter(req),
		BranchID:   optionalID(req.BranchID),
	}
	if req.Status != "" {
		st := stock_request.Status(req.Status)
		filter.Status = &st
	}

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(res))
}

// Create handles POST /stock-requests
func (h *StockRequestHandler) Create(c *gin.Context) {
	var req dto.CreateStockRequestRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Create(c.Request.Context(), req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Approve handles POST /stock-requests/:id/approve
func (h *StockRequestHandler) Approve(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ApproveStockRequestRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	doc, err := h.service.Approve(c.Request.Context(), docID, req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Fulfill handles POST /stock-requests/:id/fulfill
func (h *StockRequestHandler) Fulfill(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.FulfillStockRequestRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	doc, err := h.service.Fulfill(ctx, docID, req.ToInput(h.ActorID(c), transferPermissions(ctx, h.policy)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
