package memory

import (
	"context"
	"slices"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
)

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	docRepo[transfer.Transfer, transfer.Line]
}

var _ transfer.Repository = (*TransferRepo)(nil)

// NewTransferRepo creates a transfer repository on store.
func NewTransferRepo(store *Store) *TransferRepo {
	return &TransferRepo{docRepo[transfer.Transfer, transfer.Line]{
		store:  store,
		entity: "transfer",
		table:  func(st *state) *docTable[transfer.Transfer, transfer.Line] { return st.transfers },
		header: func(d *transfer.Transfer) *entity.Document { return &d.Document },
		detach: func(d transfer.Transfer) transfer.Transfer {
			d.History = slices.Clone(d.History)
			d.DispatchMovementIDs = slices.Clone(d.DispatchMovementIDs)
			d.ReceiptMovementIDs = slices.Clone(d.ReceiptMovementIDs)
			d.Lines = nil
			return d
		},
	}}
}

// List implements transfer.Repository.
func (r *TransferRepo) List(ctx context.Context, f transfer.ListFilter) (domain.ListResult[*transfer.Transfer], error) {
	return r.list(f.ListFilter, func(d *transfer.Transfer) bool {
		if f.BranchID != nil && d.SenderBranchID != *f.BranchID && d.ReceiverBranchID != *f.BranchID {
			return false
		}
		if f.Status != nil && d.Status != *f.Status {
			return false
		}
		return f.Type == nil || d.Type == *f.Type
	})
}

// PurchaseRepo implements purchase.Repository.
type PurchaseRepo struct {
	docRepo[purchase.Purchase, purchase.Line]
}

var _ purchase.Repository = (*PurchaseRepo)(nil)

// NewPurchaseRepo creates a purchase repository on store.
func NewPurchaseRepo(store *Store) *PurchaseRepo {
	return &PurchaseRepo{docRepo[purchase.Purchase, purchase.Line]{
		store:  store,
		entity: "purchase",
		table:  func(st *state) *docTable[purchase.Purchase, purchase.Line] { return st.purchases },
		header: func(d *purchase.Purchase) *entity.Document { return &d.Document },
		detach: func(d purchase.Purchase) purchase.Purchase {
			d.History = slices.Clone(d.History)
			d.Payments = slices.Clone(d.Payments)
			d.ReceiptMovementIDs = slices.Clone(d.ReceiptMovementIDs)
			d.Lines = nil
			return d
		},
	}}
}

// List implements purchase.Repository.
func (r *PurchaseRepo) List(ctx context.Context, f purchase.ListFilter) (domain.ListResult[*purchase.Purchase], error) {
	return r.list(f.ListFilter, func(d *purchase.Purchase) bool {
		if f.SupplierID != nil && d.SupplierID != *f.SupplierID {
			return false
		}
		if f.Status != nil && d.Status != *f.Status {
			return false
		}
		return f.PaymentStatus == nil || d.PaymentStatus == *f.PaymentStatus
	})
}

// StockRequestRepo implements stock_request.Repository.
type StockRequestRepo struct {
	docRepo[stock_request.StockRequest, stock_request.Line]
}

var _ stock_request.Repository = (*StockRequestRepo)(nil)

// NewStockRequestRepo creates a stock request repository on store.
func NewStockRequestRepo(store *Store) *StockRequestRepo {
	return &StockRequestRepo{docRepo[stock_request.StockRequest, stock_request.Line]{
		store:  store,
		entity: "stock_request",
		table:  func(st *state) *docTable[stock_request.StockRequest, stock_request.Line] { return st.requests },
		header: func(d *stock_request.StockRequest) *entity.Document { return &d.Document },
		detach: func(d stock_request.StockRequest) stock_request.StockRequest {
			d.History = slices.Clone(d.History)
			d.TransferIDs = slices.Clone(d.TransferIDs)
			d.Lines = nil
			return d
		},
	}}
}

// List implements stock_request.Repository.
func (r *StockRequestRepo) List(ctx context.Context, f stock_request.ListFilter) (domain.ListResult[*stock_request.StockRequest], error) {
	return r.list(f.ListFilter, func(d *stock_request.StockRequest) bool {
		if f.BranchID != nil && d.RequestingBranchID != *f.BranchID && d.FulfillingBranchID != *f.BranchID {
			return false
		}
		return f.Status == nil || d.Status == *f.Status
	})
}
