package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles HTTP requests for reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetStockTurnover handles GET /reports/turnover
func (h *ReportsHandler) GetStockTurnover(c *gin.Context) {
	var req dto.StockTurnoverReportRequest
	if !h.BindQuery(c, &req) {
		return
	}

	report, err := h.service.GetStockTurnover(c.Request.Context(), reports.TurnoverFilter{
		FromDate:  req.FromDate,
		ToDate:    req.ToDate,
		BranchID:  optionalID(req.BranchID),
		ProductID: optionalID(req.ProductID),
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// GetDocumentJournal handles GET /reports/journal
func (h *ReportsHandler) GetDocumentJournal(c *gin.Context) {
	var req dto.DocumentJournalRequest
	if !h.BindQuery(c, &req) {
		return
	}

	filter := reports.JournalFilter{
		FromDate: req.From,
		ToDate:   endOfDay(req.To),
		BranchID: optionalID(req.BranchID),
		Status:   req.Status,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}
	for _, k := range req.Kinds {
		filter.Kinds = append(filter.Kinds, reports.DocumentKind(k))
	}

	journal, err := h.service.GetDocumentJournal(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, journal)
}
