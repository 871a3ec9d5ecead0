package stock

import (
	"context"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// AlertKind classifies a stock level signal.
type AlertKind string

const (
	AlertLowStock   AlertKind = "low_stock"
	AlertOutOfStock AlertKind = "out_of_stock"
)

// Alert reports an entry that reached its reorder point or ran out.
type Alert struct {
	Kind  AlertKind
	Entry entity.StockEntry
}

// AlertSink receives stock level signals. It is called synchronously after the
// mutation committed and must not block for long.
type AlertSink interface {
	StockAlert(ctx context.Context, alert Alert)
}

// LogAlertSink writes alerts to the structured log.
type LogAlertSink struct{}

func (LogAlertSink) StockAlert(ctx context.Context, a Alert) {
	logger.Warn(ctx, "stock alert",
		"kind", a.Kind,
		"product_id", a.Entry.ProductID,
		"variant", a.Entry.Variant,
		"branch_id", a.Entry.BranchID,
		"quantity", a.Entry.Quantity.String(),
		"reorder_point", a.Entry.ReorderPoint.String(),
	)
}

// alertFor returns the signal an entry currently warrants, if any.
func alertFor(e *entity.StockEntry) (Alert, bool) {
	switch {
	case !e.IsActive:
		return Alert{}, false
	case e.Quantity <= 0:
		return Alert{Kind: AlertOutOfStock, Entry: *e}, true
	case e.NeedsReorder:
		return Alert{Kind: AlertLowStock, Entry: *e}, true
	}
	return Alert{}, false
}

// ProjectionScheduler queues a resync of the per-product quantity projection.
// Schedule must not fail the caller; implementations log their own errors.
type ProjectionScheduler interface {
	Schedule(ctx context.Context, productIDs ...id.ID)
}

// Metrics receives ledger counters.
type Metrics interface {
	ShortageRejected(op string)
	Compensated(op string, steps int)
	LookupCache(hit bool)
}

type noopMetrics struct{}

func (noopMetrics) ShortageRejected(string) {}
func (noopMetrics) Compensated(string, int) {}
func (noopMetrics) LookupCache(bool)        {}

type noopScheduler struct{}

func (noopScheduler) Schedule(context.Context, ...id.ID) {}
