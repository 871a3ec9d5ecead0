package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/stock")

// DefaultRetention is how long movements are kept.
const DefaultRetention = 3 * 365 * 24 * time.Hour

// Config holds the optional collaborators of the ledger service.
type Config struct {
	Cache      *LookupCache
	Alerts     AlertSink
	Projection ProjectionScheduler
	Metrics    Metrics
	Retention  time.Duration
}

// Service owns every stock quantity change. Other modules call its primitives
// and never write entries themselves.
type Service struct {
	repo       Repository
	products   directory.ProductDirectory
	txm        tx.Manager
	cache      *LookupCache
	alerts     AlertSink
	projection ProjectionScheduler
	metrics    Metrics
	retention  time.Duration
}

// NewService creates the stock ledger service.
func NewService(repo Repository, products directory.ProductDirectory, txm tx.Manager, cfg Config) *Service {
	s := &Service{
		repo:       repo,
		products:   products,
		txm:        txm,
		cache:      cfg.Cache,
		alerts:     cfg.Alerts,
		projection: cfg.Projection,
		metrics:    cfg.Metrics,
		retention:  cfg.Retention,
	}
	if s.alerts == nil {
		s.alerts = LogAlertSink{}
	}
	if s.projection == nil {
		s.projection = noopScheduler{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.retention <= 0 {
		s.retention = DefaultRetention
	}
	return s
}

// Item is one line of a batch primitive.
type Item struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	Quantity  types.Quantity `json:"quantity"`

	// UnitCost, when set on a restore, is merged into the entry cost by
	// weighted average.
	UnitCost *types.Money `json:"unitCost,omitempty"`
}

func (i Item) key(branchID id.ID) entity.StockKey {
	return entity.StockKey{ProductID: i.ProductID, Variant: i.Variant, BranchID: branchID}
}

// BatchInput is the input of DecrementBatch and RestoreBatch.
type BatchInput struct {
	BranchID  id.ID
	Items     []Item
	Reference entity.Reference
	ActorID   string
	Note      string

	// MovementType defaults to sale for decrements and return for restores.
	MovementType entity.MovementType

	// RespectReservations makes decrements leave reserved quantity untouched.
	RespectReservations bool
}

// ItemResult is the outcome of one batch line.
type ItemResult struct {
	Key          entity.StockKey `json:"key"`
	Quantity     types.Quantity  `json:"quantity"`
	BalanceAfter types.Quantity  `json:"balanceAfter"`
	CostPrice    types.Money     `json:"costPrice"`
	MovementID   id.ID           `json:"movementId"`

	// PreviousCost is the unit cost before the line was applied.
	PreviousCost types.Money `json:"previousCost"`
}

// BatchResult is returned by the batch primitives.
type BatchResult struct {
	Items     []ItemResult           `json:"items"`
	Movements []entity.StockMovement `json:"movements"`
}

// MovementIDs returns the ids of the written movements.
func (r *BatchResult) MovementIDs() []id.ID {
	ids := make([]id.ID, len(r.Movements))
	for i, m := range r.Movements {
		ids[i] = m.ID
	}
	return ids
}

func (r *BatchResult) add(entry *entity.StockEntry, qty types.Quantity, prevCost types.Money, m *entity.StockMovement) {
	item := ItemResult{
		Key:          entry.Key(),
		Quantity:     qty,
		BalanceAfter: entry.Quantity,
		CostPrice:    entry.CostPrice,
		PreviousCost: prevCost,
	}
	if m != nil {
		item.MovementID = m.ID
		r.Movements = append(r.Movements, *m)
	}
	r.Items = append(r.Items, item)
}

var decrementTypes = map[entity.MovementType]bool{
	entity.MovementSale:        true,
	entity.MovementTransferOut: true,
	entity.MovementAdjustment:  true,
}

var restoreTypes = map[entity.MovementType]bool{
	entity.MovementReturn:     true,
	entity.MovementTransferIn: true,
	entity.MovementAdjustment: true,
	entity.MovementInitial:    true,
	entity.MovementPurchase:   true,
}

// validateBatch checks a batch. With costOnly, a zero quantity line carrying a
// unit cost is accepted as a cost correction.
func validateBatch(in BatchInput, allowed map[entity.MovementType]bool, costOnly bool) error {
	if id.IsNil(in.BranchID) {
		return apperror.NewValidation("branch is required").WithDetail("field", "branchId")
	}
	if len(in.Items) == 0 {
		return apperror.NewValidation("at least one item is required").WithDetail("field", "items")
	}
	if !allowed[in.MovementType] {
		return apperror.NewValidation("movement type not allowed for this operation").
			WithDetail("movement_type", string(in.MovementType))
	}
	if err := in.Reference.Validate(); err != nil {
		return err
	}
	for i, item := range in.Items {
		if id.IsNil(item.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", fmt.Sprintf("items[%d].productId", i))
		}
		correction := costOnly && item.Quantity.IsZero() && item.UnitCost != nil
		if !item.Quantity.IsPositive() && !correction {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", fmt.Sprintf("items[%d].quantity", i)).
				WithDetail("value", item.Quantity.String())
		}
		if item.UnitCost != nil && item.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("field", fmt.Sprintf("items[%d].unitCost", i))
		}
	}
	return nil
}

// DecrementBatch removes stock for every item or for none.
//
// Each item is one conditional update; the first item that cannot be covered
// fails the call with INSUFFICIENT_STOCK and items already applied are rolled
// back. One movement is written per item.
func (s *Service) DecrementBatch(ctx context.Context, in BatchInput) (*BatchResult, error) {
	if in.MovementType == "" {
		in.MovementType = entity.MovementSale
	}
	if err := validateBatch(in, decrementTypes, false); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "stock.DecrementBatch", trace.WithAttributes(
		attribute.String("branch_id", in.BranchID.String()),
		attribute.Int("items", len(in.Items)),
	))
	defer span.End()

	var result *BatchResult
	err := s.runBatch(ctx, "decrement", func(ctx context.Context, b *batchState) error {
		b.alerts = true
		res := &BatchResult{}
		for _, item := range in.Items {
			key := item.key(in.BranchID)
			entry, ok, err := s.repo.Decrement(ctx, key, item.Quantity, in.RespectReservations)
			if err != nil {
				return fmt.Errorf("decrement %s: %w", key, err)
			}
			if !ok {
				var available types.Quantity
				if entry != nil {
					available = entry.Sellable(in.RespectReservations)
				}
				s.metrics.ShortageRejected("decrement")
				return apperror.NewInsufficientStock(
					item.ProductID.String(), string(item.Variant),
					item.Quantity.String(), available.String(),
				)
			}
			qty := item.Quantity
			b.undo.push(func(ctx context.Context) error {
				return s.repo.Compensate(ctx, key, qty)
			})
			b.touch(entry)

			m := entity.NewStockMovement(entry, in.MovementType, qty.Neg(), in.Reference, in.ActorID, s.retention)
			m.Note = in.Note
			res.add(entry, qty, entry.CostPrice, &m)
		}
		if err := s.repo.InsertMovements(ctx, res.Movements); err != nil {
			return fmt.Errorf("insert movements: %w", err)
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock decremented",
		"branch_id", in.BranchID,
		"items", len(result.Items),
		"reference", in.Reference.String(),
	)
	return result, nil
}

// RestoreBatch adds stock for every item or for none, creating missing entries
// with zero quantity first.
func (s *Service) RestoreBatch(ctx context.Context, in BatchInput) (*BatchResult, error) {
	if in.MovementType == "" {
		in.MovementType = entity.MovementReturn
	}
	return s.restore(ctx, in, false, nil)
}

// restore is shared by RestoreBatch and ApplyPurchaseEntry. onItem runs inside
// the batch after each line was credited. Cost-only lines replace the unit
// cost and write no movement.
func (s *Service) restore(ctx context.Context, in BatchInput, costOnly bool, onItem func(ctx context.Context, entry *entity.StockEntry) error) (*BatchResult, error) {
	if err := validateBatch(in, restoreTypes, costOnly); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "stock.RestoreBatch", trace.WithAttributes(
		attribute.String("branch_id", in.BranchID.String()),
		attribute.String("movement_type", string(in.MovementType)),
		attribute.Int("items", len(in.Items)),
	))
	defer span.End()

	var result *BatchResult
	err := s.runBatch(ctx, "restore", func(ctx context.Context, b *batchState) error {
		res := &BatchResult{}
		for _, item := range in.Items {
			key := item.key(in.BranchID)
			before, err := s.ensureEntry(ctx, key)
			if err != nil {
				return err
			}
			entry, err := s.repo.Increment(ctx, key, item.Quantity, item.UnitCost)
			if err != nil {
				return fmt.Errorf("increment %s: %w", key, err)
			}
			qty, prevCost := item.Quantity, before.CostPrice
			costMerged := item.UnitCost != nil
			b.undo.push(func(ctx context.Context) error {
				if err := s.repo.Compensate(ctx, key, qty.Neg()); err != nil {
					return err
				}
				if costMerged {
					return s.repo.SetCost(ctx, key, prevCost)
				}
				return nil
			})
			b.touch(entry)

			if onItem != nil {
				if err := onItem(ctx, entry); err != nil {
					return err
				}
			}

			if qty.IsZero() {
				res.add(entry, qty, prevCost, nil)
				continue
			}
			m := entity.NewStockMovement(entry, in.MovementType, qty, in.Reference, in.ActorID, s.retention)
			m.UnitCost = item.UnitCost
			m.Note = in.Note
			res.add(entry, qty, prevCost, &m)
		}
		if len(res.Movements) > 0 {
			if err := s.repo.InsertMovements(ctx, res.Movements); err != nil {
				return fmt.Errorf("insert movements: %w", err)
			}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock restored",
		"branch_id", in.BranchID,
		"movement_type", in.MovementType,
		"items", len(result.Items),
		"reference", in.Reference.String(),
	)
	return result, nil
}

// PurchaseEntryInput is the input of ApplyPurchaseEntry. Every item must carry
// its net unit cost.
type PurchaseEntryInput struct {
	BranchID  id.ID
	Items     []Item
	Reference entity.Reference
	ActorID   string
	Note      string
}

// ApplyPurchaseEntry credits purchased stock with weighted-average costing and
// stores the resulting cost on the product as the latest cost snapshot. A line
// with zero quantity only replaces the unit cost.
func (s *Service) ApplyPurchaseEntry(ctx context.Context, in PurchaseEntryInput) (*BatchResult, error) {
	for i, item := range in.Items {
		if item.UnitCost == nil {
			return nil, apperror.NewValidation("unit cost is required for purchase entries").
				WithDetail("field", fmt.Sprintf("items[%d].unitCost", i))
		}
	}
	return s.restore(ctx, BatchInput{
		BranchID:     in.BranchID,
		Items:        in.Items,
		Reference:    in.Reference,
		ActorID:      in.ActorID,
		Note:         in.Note,
		MovementType: entity.MovementPurchase,
	}, true, func(ctx context.Context, entry *entity.StockEntry) error {
		if err := s.products.UpdateCostSnapshot(ctx, entry.ProductID, entry.Variant, entry.CostPrice); err != nil {
			return fmt.Errorf("update cost snapshot: %w", err)
		}
		return nil
	})
}

// RevertPurchaseEntry takes back what ApplyPurchaseEntry credited when the
// purchase itself could not be saved. Credited quantity leaves as adjustment
// movements and the previous unit cost is put back on the entry and the
// product snapshot.
func (s *Service) RevertPurchaseEntry(ctx context.Context, applied *BatchResult, ref entity.Reference, actorID, note string) (*BatchResult, error) {
	if applied == nil || len(applied.Items) == 0 {
		return &BatchResult{}, nil
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var result *BatchResult
	err := s.runBatch(ctx, "revert_purchase", func(ctx context.Context, b *batchState) error {
		b.alerts = true
		res := &BatchResult{}
		for _, it := range applied.Items {
			key, qty, prevCost := it.Key, it.Quantity, it.PreviousCost
			entry, err := s.repo.GetEntry(ctx, key)
			if err != nil {
				return fmt.Errorf("get entry %s: %w", key, err)
			}
			costBefore := entry.CostPrice

			if qty.IsPositive() {
				var ok bool
				entry, ok, err = s.repo.Decrement(ctx, key, qty, false)
				if err != nil {
					return fmt.Errorf("decrement %s: %w", key, err)
				}
				if !ok {
					var available types.Quantity
					if entry != nil {
						available = entry.Quantity
					}
					return apperror.NewInsufficientStock(
						key.ProductID.String(), string(key.Variant),
						qty.String(), available.String(),
					)
				}
				b.undo.push(func(ctx context.Context) error {
					return s.repo.Compensate(ctx, key, qty)
				})
			}

			if err := s.repo.SetCost(ctx, key, prevCost); err != nil {
				return fmt.Errorf("set cost %s: %w", key, err)
			}
			b.undo.push(func(ctx context.Context) error {
				return s.repo.SetCost(ctx, key, costBefore)
			})
			entry.CostPrice = prevCost
			b.touch(entry)

			if err := s.products.UpdateCostSnapshot(ctx, key.ProductID, key.Variant, prevCost); err != nil {
				return fmt.Errorf("update cost snapshot: %w", err)
			}

			if qty.IsZero() {
				res.add(entry, qty, costBefore, nil)
				continue
			}
			m := entity.NewStockMovement(entry, entity.MovementAdjustment, qty.Neg(), ref, actorID, s.retention)
			m.Note = note
			res.add(entry, qty, costBefore, &m)
		}
		if len(res.Movements) > 0 {
			if err := s.repo.InsertMovements(ctx, res.Movements); err != nil {
				return fmt.Errorf("insert movements: %w", err)
			}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Warn(ctx, "purchase entry reverted",
		"items", len(result.Items),
		"reference", ref.String(),
	)
	return result, nil
}

// ensureEntry returns the entry for key, creating it when absent.
//
// New entries copy identifiers, cost and the active flag from the product
// directory. When that lookup fails the entry is created inactive so stock of a
// product in unknown state is never silently made sellable.
func (s *Service) ensureEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error) {
	entry, err := s.repo.GetEntry(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("get entry %s: %w", key, err)
	}

	seed := EntrySeed{Key: key}
	product, err := s.products.Get(ctx, key.ProductID)
	if err != nil {
		logger.Warn(ctx, "product lookup failed, creating inactive stock entry",
			"product_id", key.ProductID,
			"variant", key.Variant,
			"branch_id", key.BranchID,
			"error", err,
		)
	} else {
		if err := product.CheckVariant(key.Variant); err != nil {
			return nil, err
		}
		seed.IsActive = product.ActiveFor(key.Variant)
		seed.SKU, seed.Barcode = product.IdentifiersFor(key.Variant)
		seed.CostPrice = product.CostFor(key.Variant)
	}

	entry, err = s.repo.UpsertEntry(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("upsert entry %s: %w", key, err)
	}
	return entry, nil
}

// SetStockInput is the input of SetStock.
type SetStockInput struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	BranchID  id.ID          `json:"branchId"`
	Quantity  types.Quantity `json:"quantity"`
	Reason    string         `json:"reason"`
	ActorID   string         `json:"-"`

	// Reference defaults to a manual reference.
	Reference *entity.Reference `json:"-"`
}

// SetStockResult is returned by SetStock.
type SetStockResult struct {
	Entry    *entity.StockEntry    `json:"entry"`
	Previous types.Quantity        `json:"previous"`
	Movement *entity.StockMovement `json:"movement,omitempty"`
}

// MovementTypeForReason picks recount when the reason mentions a recount and
// adjustment otherwise.
func MovementTypeForReason(reason string) entity.MovementType {
	if strings.Contains(strings.ToLower(reason), "recount") {
		return entity.MovementRecount
	}
	return entity.MovementAdjustment
}

// SetStock stores an absolute quantity and records the difference as one
// movement. An unchanged quantity writes no movement.
func (s *Service) SetStock(ctx context.Context, in SetStockInput) (*SetStockResult, error) {
	if id.IsNil(in.ProductID) || id.IsNil(in.BranchID) {
		return nil, apperror.NewValidation("product and branch are required")
	}
	if in.Quantity.IsNegative() {
		return nil, apperror.NewValidation("quantity must not be negative").
			WithDetail("field", "quantity").
			WithDetail("value", in.Quantity.String())
	}
	ref := entity.ManualRef()
	if in.Reference != nil {
		ref = *in.Reference
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "stock.SetStock")
	defer span.End()

	key := entity.StockKey{ProductID: in.ProductID, Variant: in.Variant, BranchID: in.BranchID}
	var result *SetStockResult
	err := s.runBatch(ctx, "set", func(ctx context.Context, b *batchState) error {
		b.alerts = true
		if _, err := s.ensureEntry(ctx, key); err != nil {
			return err
		}
		prev, entry, err := s.repo.SetQuantity(ctx, key, in.Quantity)
		if err != nil {
			return fmt.Errorf("set quantity %s: %w", key, err)
		}
		b.undo.push(func(ctx context.Context) error {
			_, _, err := s.repo.SetQuantity(ctx, key, prev)
			return err
		})
		b.touch(entry)

		result = &SetStockResult{Entry: entry, Previous: prev}
		delta := in.Quantity - prev
		if delta == 0 {
			return nil
		}
		m := entity.NewStockMovement(entry, MovementTypeForReason(in.Reason), delta, ref, in.ActorID, s.retention)
		m.Note = in.Reason
		if err := s.repo.InsertMovements(ctx, []entity.StockMovement{m}); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
		result.Movement = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock set",
		"key", key.String(),
		"previous", result.Previous.String(),
		"quantity", in.Quantity.String(),
	)
	return result, nil
}

// CheckAvailability reports every item the branch cannot cover. Quantities of
// repeated (product, variant) lines are summed. Nothing is mutated.
func (s *Service) CheckAvailability(ctx context.Context, branchID id.ID, items []Item, respectReservations bool) ([]apperror.Shortage, error) {
	type need struct {
		key entity.StockKey
		qty types.Quantity
	}
	var order []entity.StockKey
	needs := make(map[entity.StockKey]*need, len(items))
	for _, item := range items {
		key := item.key(branchID)
		if n, ok := needs[key]; ok {
			n.qty += item.Quantity
			continue
		}
		needs[key] = &need{key: key, qty: item.Quantity}
		order = append(order, key)
	}

	var shortages []apperror.Shortage
	for _, key := range order {
		n := needs[key]
		var available types.Quantity
		entry, err := s.repo.GetEntry(ctx, key)
		switch {
		case err == nil:
			available = entry.Sellable(respectReservations)
		case apperror.IsNotFound(err):
		default:
			return nil, fmt.Errorf("get entry %s: %w", key, err)
		}
		if available < n.qty {
			shortages = append(shortages, apperror.Shortage{
				ProductID: key.ProductID.String(),
				Variant:   string(key.Variant),
				Requested: n.qty.String(),
				Available: available.String(),
			})
		}
	}
	return shortages, nil
}

// GetByBarcodeOrSku resolves a scanned code within a branch through the lookup
// cache.
func (s *Service) GetByBarcodeOrSku(ctx context.Context, code string, branchID id.ID) (*entity.StockEntry, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	load := func(ctx context.Context) (*entity.StockEntry, error) {
		return s.repo.FindByCode(ctx, code, branchID)
	}
	if s.cache == nil {
		return load(ctx)
	}
	entry, hit, err := s.cache.Get(ctx, code, branchID, load)
	if err != nil {
		return nil, err
	}
	s.metrics.LookupCache(hit)
	return entry, nil
}

// GetEntry returns one entry.
func (s *Service) GetEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error) {
	return s.repo.GetEntry(ctx, key)
}

// ListEntries returns entries matching the filter.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]entity.StockEntry, error) {
	filter.Limit = NormalizedLimit(filter.Limit)
	return s.repo.ListEntries(ctx, filter)
}

// ListMovements returns movement history, newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]entity.StockMovement, error) {
	if filter.Reference != nil {
		if err := filter.Reference.Validate(); err != nil {
			return nil, err
		}
	}
	filter.Limit = NormalizedLimit(filter.Limit)
	return s.repo.ListMovements(ctx, filter)
}

// SumQuantity totals active stock of a product over all branches.
func (s *Service) SumQuantity(ctx context.Context, productID id.ID) (types.Quantity, error) {
	return s.repo.SumQuantityByProduct(ctx, productID)
}

// PurgeExpiredMovements deletes movements past their retention window.
func (s *Service) PurgeExpiredMovements(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeleteExpiredMovements(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired movements: %w", err)
	}
	if n > 0 {
		logger.Info(ctx, "purged expired stock movements", "count", n)
	}
	return n, nil
}
