package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// PurchaseHandler handles HTTP requests for purchase invoices.
type PurchaseHandler struct {
	*BaseHandler
	service *purchase.Service
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(base *BaseHandler, service *purchase.Service) *PurchaseHandler {
	return &PurchaseHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the purchase endpoints on rg.
func (h *PurchaseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", getDocument(h.BaseHandler, h.service.Get))
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/approve", noteTransition(h.BaseHandler, h.service.Approve))
	rg.POST("/:id/receive", noteTransition(h.BaseHandler, h.service.Receive))
	rg.POST("/:id/cancel", reasonTransition(h.BaseHandler, h.service.Cancel))
	rg.POST("/:id/pay", h.Pay)
}

// List handles GET /purchases
func (h *PurchaseHandler) List(c *gin.Context) {
	var req dto.PurchaseListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := purchase.ListFilter{
		ListFilter: listFilter(req.DocumentListRequest),
		SupplierID: optionalID(req.SupplierID),
	}
	if req.Status != "" {
		st := purchase.Status(req.Status)
		filter.Status = &st
	}
	if req.PaymentStatus != "" {
		ps := purchase.PaymentStatus(req.PaymentStatus)
		filter.PaymentStatus = &ps
	}

	res, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, listResponse(res))
}

// Create handles POST /purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseRequest
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

// Update handles PUT /purchases/:id
func (h *PurchaseHandler) Update(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdatePurchaseRequest
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

// Pay handles POST /purchases/:id/pay
func (h *PurchaseHandler) Pay(c *gin.Context) {
	docID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.PayPurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := h.service.Pay(c.Request.Context(), docID, req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}
