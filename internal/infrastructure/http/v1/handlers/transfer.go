package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/security"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// GrantPolicy evaluates the caller's transfer grants.
type GrantPolicy interface {
	TransferGrants(ctx context.Context) security.TransferGrants
}

func transferPermissions(ctx context.Context, p GrantPolicy) transfer.Permissions {
	if p == nil {
		return transfer.Permissions{}
	}
	g := p.TransferGrants(ctx)
	return transfer.Permissions{AllowSubToSub: g.SubToSub, AllowSubToHead: g.SubToHead}
}

// TransferHandler handles HTTP requests for transfers.
type TransferHandler struct {
	*BaseHandler
	service *transfer.Service
	policy  GrantPolicy
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(base *BaseHandler, service *transfer.Service, policy GrantPolicy) *TransferHandler {
	return &TransferHandler{BaseHandler: base, service: service, policy: policy}
}

// RegisterRoutes mounts the transfer endpoints on rg.
func (h *TransferHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", getDocument(h.BaseHandler, h.service.Get))
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/approve", noteTransition(h.BaseHandler, h.service.Approve))
	rg.POST("/:id/dispatch", noteTransition(h.BaseHandler, h.service.Dispatch))
	rg.POST("/:id/in-transit", noteTransition(h.BaseHandler, h.service.MarkInTransit))
	rg.POST("/:id/receive", h.Receive)
	rg.POST("/:id/cancel", reasonTransition(h.BaseHandler, h.service.Cancel))
}

// List handles GET /transfers
func (h *TransferHandler) List(c *gin.Context) {
	var req dto.TransferListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := transfer.ListFilter{
		ListFilter: listFilter(req.DocumentListRequest),
		BranchID:   optionalID(req.BranchID),
	}
	if req.Status != "" {
		st := transfer.Status(req.Status)
		filter.Status = &st
	}
	if req.Type != "" {
		t := transfer.Type(req.Type)
		filter.Type = &t
	}

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(res))
}

// Create handles POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req dto.CreateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	in := req.ToInput(h.ActorID(c), transferPermissions(ctx, h.policy))

	create := h.service.Create
	if req.Dispatch {
		create = h.service.CreateAndDispatch
	}
	doc, err := create(ctx, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, doc)
}

// Update handles PUT /transfers/:id
func (h *TransferHandler) Update(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Update(c.Request.Context(), docID, req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// Receive handles POST /transfers/:id/receive
func (h *TransferHandler) Receive(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Receive(c.Request.Context(), docID, req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
