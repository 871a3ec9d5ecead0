package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/middleware"
)

// Permissions checked on the stock maintenance endpoints.
const (
	PermissionStockAdjust = "stock.adjust"
	PermissionStockManage = "stock.manage"
)

// StockHandler exposes the ledger primitives and availability queries.
type StockHandler struct {
	*BaseHandler
	service      *stock.Service
	availability *stock.AvailabilityService
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *stock.Service, availability *stock.AvailabilityService) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service, availability: availability}
}

// RegisterRoutes mounts the stock endpoints on rg.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/decrement", h.Decrement)
	rg.POST("/restore", h.Restore)
	rg.POST("/availability", h.CheckAvailability)
	rg.POST("/cart-check", h.ValidateCart)
	rg.GET("/lookup", h.Lookup)
	rg.GET("/entries", h.ListEntries)
	rg.GET("/low-stock", h.LowStock)
	rg.GET("/out-of-stock", h.OutOfStock)
	rg.GET("/branches/:id/summary", h.BranchSummary)
	rg.GET("/products/:id/totals", h.ProductTotals)
	rg.GET("/movements", h.ListMovements)
	rg.POST("/reservations", h.Reserve)
	rg.POST("/reservations/release", h.Release)

	adjust := middleware.RequirePermission(PermissionStockAdjust)
	rg.POST("/set", adjust, h.SetStock)
	rg.POST("/adjustments/bulk", adjust, h.BulkAdjust)

	manage := middleware.RequirePermission(PermissionStockManage)
	rg.PUT("/reorder-levels", manage, h.SetReorderLevels)
	rg.POST("/products/:id/deactivate", manage, h.DeactivateProduct)
	rg.POST("/products/:id/activate", manage, h.ActivateProduct)
}

// Decrement handles POST /stock/decrement
func (h *StockHandler) Decrement(c *gin.Context) {
	var req dto.BatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.DecrementBatch(c.Request.Context(), req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Restore handles POST /stock/restore
func (h *StockHandler) Restore(c *gin.Context) {
	var req dto.BatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.RestoreBatch(c.Request.Context(), req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// SetStock handles POST /stock/set
func (h *StockHandler) SetStock(c *gin.Context) {
	var req dto.SetStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.SetStock(c.Request.Context(), req.ToInput(h.ActorID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// CheckAvailability handles POST /stock/availability
func (h *StockHandler) CheckAvailability(c *gin.Context) {
	var req dto.AvailabilityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	shortages, err := h.service.CheckAvailability(c.Request.Context(), req.BranchID, dto.ToItems(req.Items), req.RespectReservations)
	if err != nil {
		h.Error(c, err)
		return
	}
	if shortages == nil {
		shortages = []apperror.Shortage{}
	}
	h.OK(c, gin.H{"available": len(shortages) == 0, "shortages": shortages})
}

// ValidateCart handles POST /stock/cart-check
func (h *StockHandler) ValidateCart(c *gin.Context) {
	var req dto.AvailabilityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	check, err := h.availability.ValidateCart(c.Request.Context(), req.BranchID, dto.ToItems(req.Items))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, check)
}

// Lookup handles GET /stock/lookup?code=&branchId=
func (h *StockHandler) Lookup(c *gin.Context) {
	var req dto.LookupRequest
	if !h.BindQuery(c, &req) {
		return
	}
	branchID, ok := h.ParseID(c, req.BranchID, "branchId")
	if !ok {
		return
	}
	entry, err := h.service.GetByBarcodeOrSku(c.Request.Context(), req.Code, branchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// ListEntries handles GET /stock/entries
func (h *StockHandler) ListEntries(c *gin.Context) {
	var req dto.EntryListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	entries, err := h.service.ListEntries(c.Request.Context(), stock.EntryFilter{
		BranchID:     optionalID(req.BranchID),
		ProductID:    optionalID(req.ProductID),
		OnlyActive:   req.OnlyActive,
		NeedsReorder: req.NeedsReorder,
		OutOfStock:   req.OutOfStock,
		Limit:        stock.NormalizedLimit(req.Limit),
		Offset:       req.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(entries))
}

// LowStock handles GET /stock/low-stock
func (h *StockHandler) LowStock(c *gin.Context) {
	var req dto.BranchLimitRequest
	if !h.BindQuery(c, &req) {
		return
	}
	branchID, ok := h.ParseID(c, req.BranchID, "branchId")
	if !ok {
		return
	}
	entries, err := h.availability.LowStock(c.Request.Context(), branchID, req.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(entries))
}

// OutOfStock handles GET /stock/out-of-stock
func (h *StockHandler) OutOfStock(c *gin.Context) {
	var req dto.BranchLimitRequest
	if !h.BindQuery(c, &req) {
		return
	}
	branchID, ok := h.ParseID(c, req.BranchID, "branchId")
	if !ok {
		return
	}
	entries, err := h.availability.OutOfStock(c.Request.Context(), branchID, req.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(entries))
}

// BranchSummary handles GET /stock/branches/:id/summary
func (h *StockHandler) BranchSummary(c *gin.Context) {
	branchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	sum, err := h.availability.BranchSummary(c.Request.Context(), branchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sum)
}

// ProductTotals handles GET /stock/products/:id/totals
func (h *StockHandler) ProductTotals(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	totals, err := h.availability.CrossBranchTotals(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, totals)
}

// ListMovements handles GET /stock/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	var req dto.MovementListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := stock.MovementFilter{
		ProductID: optionalID(req.ProductID),
		BranchID:  optionalID(req.BranchID),
		FromDate:  req.From,
		ToDate:    endOfDay(req.To),
		Limit:     stock.NormalizedLimit(req.Limit),
		Offset:    req.Offset,
	}
	if req.Type != "" {
		t := entity.MovementType(req.Type)
		if !t.Valid() {
			h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("type", req.Type))
			return
		}
		filter.Type = &t
	}
	if req.ReferenceKind != "" {
		ref := entity.Reference{Kind: entity.ReferenceKind(req.ReferenceKind), ID: req.ReferenceID}
		if err := ref.Validate(); err != nil {
			h.Error(c, err)
			return
		}
		filter.Reference = &ref
	}

	movements, err := h.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItemsResponse(movements))
}

// BulkAdjust handles POST /stock/adjustments/bulk. Lines fail independently,
// so the response is 200 with per-line results.
func (h *StockHandler) BulkAdjust(c *gin.Context) {
	var req dto.BulkAdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	batchID := req.BatchID
	if batchID == "" {
		batchID = id.New().String()
	}
	results := h.service.BulkAdjust(c.Request.Context(), stock.BulkAdjustInput{
		BatchID: batchID,
		Lines:   req.Lines,
		Reason:  req.Reason,
		ActorID: h.ActorID(c),
	})
	h.OK(c, dto.NewBulkAdjustResponse(results))
}

// Reserve handles POST /stock/reservations
func (h *StockHandler) Reserve(c *gin.Context) {
	var req dto.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.Reserve(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// Release handles POST /stock/reservations/release
func (h *StockHandler) Release(c *gin.Context) {
	var req dto.ReservationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.Release(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// SetReorderLevels handles PUT /stock/reorder-levels
func (h *StockHandler) SetReorderLevels(c *gin.Context) {
	var req dto.ReorderLevelsRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entry, err := h.service.SetReorderLevels(c.Request.Context(), req.Key(), req.ReorderPoint, req.ReorderQuantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// DeactivateProduct handles POST /stock/products/:id/deactivate
func (h *StockHandler) DeactivateProduct(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req dto.ProductStateRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	n, err := h.service.DeactivateProduct(c.Request.Context(), productID, req.Snapshot)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AffectedResponse{Affected: n})
}

// ActivateProduct handles POST /stock/products/:id/activate
func (h *StockHandler) ActivateProduct(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	n, err := h.service.ActivateProduct(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AffectedResponse{Affected: n})
}
