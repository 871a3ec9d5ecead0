package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

type docTable[T any, L any] struct {
	rows  map[id.ID]T
	lines map[id.ID][]L
}

func newDocTable[T any, L any]() *docTable[T, L] {
	return &docTable[T, L]{rows: map[id.ID]T{}, lines: map[id.ID][]L{}}
}

func (t *docTable[T, L]) snapshot() *docTable[T, L] {
	return &docTable[T, L]{rows: maps.Clone(t.rows), lines: maps.Clone(t.lines)}
}

// docRepo is the generic document table shared by the concrete repositories.
type docRepo[T any, L any] struct {
	store  *Store
	entity string
	table  func(st *state) *docTable[T, L]
	header func(doc *T) *entity.Document
	// detach copies the slices a caller could mutate and clears the lines.
	detach func(doc T) T
}

// Create inserts a document. The number must be unique.
func (r *docRepo[T, L]) Create(ctx context.Context, doc *T) error {
	h := r.header(doc)
	return r.store.write(ctx, func(st *state) error {
		t := r.table(st)
		if _, ok := t.rows[h.ID]; ok {
			return apperror.NewDuplicate(r.entity, "id", h.ID.String())
		}
		for _, existing := range t.rows {
			if r.header(&existing).Number == h.Number {
				return apperror.NewDuplicate(r.entity, "number", h.Number)
			}
		}
		t.rows[h.ID] = r.detach(*doc)
		return nil
	})
}

// GetByID returns a copy of the stored header.
func (r *docRepo[T, L]) GetByID(ctx context.Context, docID id.ID) (*T, error) {
	var out *T
	err := r.store.read(func(st *state) error {
		doc, ok := r.table(st).rows[docID]
		if !ok {
			return apperror.NewNotFound(r.entity, docID.String())
		}
		doc = r.detach(doc)
		out = &doc
		return nil
	})
	return out, err
}

// GetForUpdate is GetByID; transactions already hold the store exclusively.
func (r *docRepo[T, L]) GetForUpdate(ctx context.Context, docID id.ID) (*T, error) {
	return r.GetByID(ctx, docID)
}

// Update stores the header when the version still matches and bumps it.
func (r *docRepo[T, L]) Update(ctx context.Context, doc *T) error {
	h := r.header(doc)
	return r.store.write(ctx, func(st *state) error {
		t := r.table(st)
		stored, ok := t.rows[h.ID]
		if !ok {
			return apperror.NewNotFound(r.entity, h.ID.String())
		}
		sh := r.header(&stored)
		if sh.Version != h.Version {
			return apperror.NewConcurrentModification(r.entity, h.ID.String())
		}

		next := r.detach(*doc)
		nh := r.header(&next)
		nh.Number = sh.Number
		nh.CreatedAt = sh.CreatedAt
		nh.CreatedBy = sh.CreatedBy
		nh.Version = sh.Version + 1
		nh.UpdatedAt = time.Now().UTC()
		t.rows[h.ID] = next
		return nil
	})
}

// GetLines returns a copy of the document lines.
func (r *docRepo[T, L]) GetLines(ctx context.Context, docID id.ID) ([]L, error) {
	var out []L
	err := r.store.read(func(st *state) error {
		out = slices.Clone(r.table(st).lines[docID])
		return nil
	})
	if out == nil {
		out = []L{}
	}
	return out, err
}

// SaveLines replaces the document lines.
func (r *docRepo[T, L]) SaveLines(ctx context.Context, docID id.ID, lines []L) error {
	return r.store.write(ctx, func(st *state) error {
		t := r.table(st)
		if _, ok := t.rows[docID]; !ok {
			return apperror.NewNotFound(r.entity, docID.String())
		}
		t.lines[docID] = slices.Clone(lines)
		return nil
	})
}

// list applies the common filter plus match and pages the result.
func (r *docRepo[T, L]) list(filter domain.ListFilter, match func(doc *T) bool) (domain.ListResult[*T], error) {
	filter.Normalize()
	var items []*T
	err := r.store.read(func(st *state) error {
		for _, doc := range r.table(st).rows {
			doc := r.detach(doc)
			if !matchCommon(r.header(&doc), filter) || (match != nil && !match(&doc)) {
				continue
			}
			items = append(items, &doc)
		}
		return nil
	})
	if err != nil {
		return domain.ListResult[*T]{}, err
	}

	sortDocuments(items, r.header, filter.OrderBy)
	total := len(items)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	page := items[start:end]
	if page == nil {
		page = []*T{}
	}
	return domain.ListResult[*T]{
		Items:      page,
		TotalCount: int64(total),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

func matchCommon(h *entity.Document, f domain.ListFilter) bool {
	if h.DeletionMark && !f.IncludeDeleted {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(h.Number), strings.ToLower(f.Search)) {
		return false
	}
	if f.DateFrom != nil && h.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && h.Date.After(*f.DateTo) {
		return false
	}
	return true
}

func sortDocuments[T any](items []*T, header func(*T) *entity.Document, orderBy string) {
	desc := strings.HasPrefix(orderBy, "-")
	field := strings.TrimPrefix(orderBy, "-")
	slices.SortStableFunc(items, func(a, b *T) int {
		ha, hb := header(a), header(b)
		var c int
		switch field {
		case "number":
			c = cmp.Compare(ha.Number, hb.Number)
		case "created_at":
			c = ha.CreatedAt.Compare(hb.CreatedAt)
		case "updated_at":
			c = ha.UpdatedAt.Compare(hb.UpdatedAt)
		default:
			c = ha.Date.Compare(hb.Date)
		}
		if c == 0 {
			c = cmp.Compare(ha.Number, hb.Number)
		}
		if desc {
			return -c
		}
		return c
	})
}
