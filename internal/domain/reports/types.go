// Package reports provides read-only ledger reports.
package reports

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// --- Stock Turnover Report ---

// TurnoverFilter defines the period and scope of a turnover report.
type TurnoverFilter struct {
	// Period [FromDate, ToDate) (required)
	FromDate time.Time
	ToDate   time.Time

	BranchID  *id.ID
	ProductID *id.ID

	Limit  int
	Offset int
}

// TurnoverRow is the movement total of one stock entry within the period.
// Only entries with at least one movement in the period are reported.
type TurnoverRow struct {
	ProductID id.ID          `db:"product_id" json:"productId"`
	Variant   entity.Variant `db:"variant_key" json:"variant,omitempty"`
	BranchID  id.ID          `db:"branch_id" json:"branchId"`

	Opening   types.Quantity `db:"opening" json:"opening"`
	Inbound   types.Quantity `db:"inbound" json:"inbound"`
	Outbound  types.Quantity `db:"outbound" json:"outbound"`
	Closing   types.Quantity `db:"closing" json:"closing"`
	Movements int            `db:"movements" json:"movements"`
}

// TurnoverReport is the full turnover report.
type TurnoverReport struct {
	FromDate time.Time     `json:"fromDate"`
	ToDate   time.Time     `json:"toDate"`
	Rows     []TurnoverRow `json:"rows"`

	TotalInbound  types.Quantity `json:"totalInbound"`
	TotalOutbound types.Quantity `json:"totalOutbound"`
}

// --- Document Journal ---

// DocumentKind names a workflow document type in the journal.
type DocumentKind string

const (
	KindTransfer     DocumentKind = "transfer"
	KindPurchase     DocumentKind = "purchase"
	KindStockRequest DocumentKind = "stock_request"
)

// AllKinds lists every journal document kind.
var AllKinds = []DocumentKind{KindTransfer, KindPurchase, KindStockRequest}

// JournalFilter defines filter for the document journal.
type JournalFilter struct {
	FromDate *time.Time
	ToDate   *time.Time

	Kinds []DocumentKind

	// BranchID matches any branch the document touches
	BranchID *id.ID
	Status   string

	Limit  int
	Offset int
}

// JournalItem is one document in the journal.
type JournalItem struct {
	ID     id.ID        `db:"id" json:"id"`
	Kind   DocumentKind `db:"kind" json:"kind"`
	Number string       `db:"number" json:"number"`
	Date   time.Time    `db:"date" json:"date"`
	Status string       `db:"status" json:"status"`

	// BranchID is the sending, receiving or requesting branch
	BranchID        id.ID  `db:"branch_id" json:"branchId"`
	CounterBranchID *id.ID `db:"counter_branch_id" json:"counterBranchId,omitempty"`

	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalValue    types.Money    `db:"total_value" json:"totalValue"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// KindSummary gives count and totals per document kind.
type KindSummary struct {
	Kind          DocumentKind   `db:"kind" json:"kind"`
	Count         int            `db:"count" json:"count"`
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalValue    types.Money    `db:"total_value" json:"totalValue"`
}

// DocumentJournal is the journal result.
type DocumentJournal struct {
	Items      []JournalItem `json:"items"`
	TotalCount int64         `json:"totalCount"`
	Limit      int           `json:"limit"`
	Offset     int           `json:"offset"`

	// Summary is filled on the first page only
	Summary []KindSummary `json:"summary,omitempty"`
}
