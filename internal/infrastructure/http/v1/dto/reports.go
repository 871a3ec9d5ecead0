package dto

import "time"

// StockTurnoverReportRequest is the query of GET /reports/turnover.
type StockTurnoverReportRequest struct {
	PaginationRequest
	FromDate  time.Time `form:"fromDate" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	ToDate    time.Time `form:"toDate" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	BranchID  string    `form:"branchId" binding:"omitempty,uuid"`
	ProductID string    `form:"productId" binding:"omitempty,uuid"`
}

// DocumentJournalRequest is the query of GET /reports/journal.
type DocumentJournalRequest struct {
	PaginationRequest
	DateRange
	Kinds    []string `form:"kind"`
	BranchID string   `form:"branchId" binding:"omitempty,uuid"`
	Status   string   `form:"status"`
}
