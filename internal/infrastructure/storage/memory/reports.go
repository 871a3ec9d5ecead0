package memory

import (
	"cmp"
	"context"
	"slices"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reports"
)

// ReportRepo implements reports.Repository over the store.
type ReportRepo struct {
	store *Store
}

var _ reports.Repository = (*ReportRepo)(nil)

// NewReportRepo creates a report repository.
func NewReportRepo(store *Store) *ReportRepo {
	return &ReportRepo{store: store}
}

type turnoverAcc struct {
	row        reports.TurnoverRow
	last       entity.StockMovement
	hasClosing bool
}

// Turnover implements reports.Repository.
func (r *ReportRepo) Turnover(ctx context.Context, f reports.TurnoverFilter) ([]reports.TurnoverRow, error) {
	acc := map[entity.StockKey]*turnoverAcc{}
	err := r.store.read(func(st *state) error {
		for _, m := range st.movements {
			if m.CreatedAt.Before(f.FromDate) || !m.CreatedAt.Before(f.ToDate) {
				continue
			}
			if f.BranchID != nil && m.BranchID != *f.BranchID {
				continue
			}
			if f.ProductID != nil && m.ProductID != *f.ProductID {
				continue
			}
			key := entity.StockKey{ProductID: m.ProductID, Variant: m.Variant, BranchID: m.BranchID}
			a, ok := acc[key]
			if !ok {
				a = &turnoverAcc{row: reports.TurnoverRow{ProductID: m.ProductID, Variant: m.Variant, BranchID: m.BranchID}}
				acc[key] = a
			}
			if m.Quantity > 0 {
				a.row.Inbound += m.Quantity
			} else {
				a.row.Outbound -= m.Quantity
			}
			a.row.Movements++
			if !a.hasClosing || laterMovement(m, a.last) {
				a.last = m
				a.hasClosing = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]reports.TurnoverRow, 0, len(acc))
	for _, a := range acc {
		a.row.Closing = a.last.BalanceAfter
		a.row.Opening = a.row.Closing - a.row.Inbound + a.row.Outbound
		rows = append(rows, a.row)
	}
	slices.SortFunc(rows, func(a, b reports.TurnoverRow) int {
		return compareKeys(
			entity.StockKey{ProductID: a.ProductID, Variant: a.Variant, BranchID: a.BranchID},
			entity.StockKey{ProductID: b.ProductID, Variant: b.Variant, BranchID: b.BranchID},
		)
	})
	return page(rows, f.Offset, f.Limit), nil
}

func laterMovement(a, b entity.StockMovement) bool {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c > 0
	}
	return a.ID.String() > b.ID.String()
}

// journal collects every document matching f, newest first.
func (r *ReportRepo) journal(f reports.JournalFilter) ([]reports.JournalItem, error) {
	var items []reports.JournalItem
	keep := func(it reports.JournalItem, deleted bool, branches ...id.ID) {
		if deleted {
			return
		}
		if f.FromDate != nil && it.Date.Before(*f.FromDate) {
			return
		}
		if f.ToDate != nil && !it.Date.Before(*f.ToDate) {
			return
		}
		if f.Status != "" && it.Status != f.Status {
			return
		}
		if f.BranchID != nil && !slices.Contains(branches, *f.BranchID) {
			return
		}
		items = append(items, it)
	}

	err := r.store.read(func(st *state) error {
		for _, kind := range f.Kinds {
			switch kind {
			case reports.KindTransfer:
				for _, d := range st.transfers.rows {
					receiver := d.ReceiverBranchID
					keep(reports.JournalItem{
						ID: d.ID, Kind: kind, Number: d.Number, Date: d.Date, Status: string(d.Status),
						BranchID: d.SenderBranchID, CounterBranchID: &receiver,
						TotalQuantity: d.TotalQuantity, TotalValue: d.TotalValue, CreatedAt: d.CreatedAt,
					}, d.DeletionMark, d.SenderBranchID, d.ReceiverBranchID)
				}
			case reports.KindPurchase:
				for docID, d := range st.purchases.rows {
					var qty types.Quantity
					for _, l := range st.purchases.lines[docID] {
						qty += l.Quantity
					}
					keep(reports.JournalItem{
						ID: d.ID, Kind: kind, Number: d.Number, Date: d.Date, Status: string(d.Status),
						BranchID:      d.BranchID,
						TotalQuantity: qty, TotalValue: d.GrandTotal, CreatedAt: d.CreatedAt,
					}, d.DeletionMark, d.BranchID)
				}
			case reports.KindStockRequest:
				for _, d := range st.requests.rows {
					fulfilling := d.FulfillingBranchID
					keep(reports.JournalItem{
						ID: d.ID, Kind: kind, Number: d.Number, Date: d.Date, Status: string(d.Status),
						BranchID: d.RequestingBranchID, CounterBranchID: &fulfilling,
						TotalQuantity: d.TotalRequested, TotalValue: types.Zero(), CreatedAt: d.CreatedAt,
					}, d.DeletionMark, d.RequestingBranchID, d.FulfillingBranchID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(items, func(a, b reports.JournalItem) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.Number, a.Number)
	})
	return items, nil
}

// Journal implements reports.Repository.
func (r *ReportRepo) Journal(ctx context.Context, f reports.JournalFilter) ([]reports.JournalItem, int64, error) {
	items, err := r.journal(f)
	if err != nil {
		return nil, 0, err
	}
	return page(items, f.Offset, f.Limit), int64(len(items)), nil
}

// JournalSummary implements reports.Repository.
func (r *ReportRepo) JournalSummary(ctx context.Context, f reports.JournalFilter) ([]reports.KindSummary, error) {
	items, err := r.journal(f)
	if err != nil {
		return nil, err
	}
	byKind := map[reports.DocumentKind]*reports.KindSummary{}
	for _, it := range items {
		s, ok := byKind[it.Kind]
		if !ok {
			s = &reports.KindSummary{Kind: it.Kind, TotalValue: types.Zero()}
			byKind[it.Kind] = s
		}
		s.Count++
		s.TotalQuantity += it.TotalQuantity
		s.TotalValue = s.TotalValue.Add(it.TotalValue)
	}
	out := make([]reports.KindSummary, 0, len(byKind))
	for _, s := range byKind {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b reports.KindSummary) int { return cmp.Compare(a.Kind, b.Kind) })
	return out, nil
}
