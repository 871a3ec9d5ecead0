package memory

import (
	"context"
	"time"

	"stockledger/internal/core/idempotency"
)

// IdempotencyStore implements idempotency.Store.
type IdempotencyStore struct {
	store *Store
	ttl   time.Duration
}

var _ idempotency.Store = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates an idempotency store on store.
func NewIdempotencyStore(store *Store, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{store: store, ttl: ttl}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	var replay *idempotency.Replay
	err := s.store.write(ctx, func(st *state) error {
		now := time.Now().UTC()
		rec, ok := st.idempotency[req.Key]
		if !ok || now.After(rec.ExpiresAt) {
			st.idempotency[req.Key] = idempotency.Record{
				Key:         req.Key,
				ActorID:     req.ActorID,
				Operation:   req.Operation,
				Status:      idempotency.StatusPending,
				RequestHash: req.RequestHash,
				CreatedAt:   now,
				UpdatedAt:   now,
				ExpiresAt:   now.Add(s.ttl),
			}
			return nil
		}

		outcome, err := idempotency.Decide(&rec, req, now)
		switch outcome {
		case idempotency.OutcomeReplay:
			replay = idempotency.ReplayOf(&rec)
			return nil
		case idempotency.OutcomeReclaim:
			rec.UpdatedAt = now
			st.idempotency[req.Key] = rec
			return nil
		}
		return err
	})
	return replay, err
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, idempotency.StatusSuccess, statusCode, contentType, body)
}

// Fail implements idempotency.Store.
func (s *IdempotencyStore) Fail(ctx context.Context, key string, statusCode int, contentType string, body []byte) error {
	return s.finish(ctx, key, idempotency.StatusFailed, statusCode, contentType, body)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status idempotency.Status, statusCode int, contentType string, body []byte) error {
	return s.store.write(ctx, func(st *state) error {
		rec, ok := st.idempotency[key]
		if !ok {
			return nil
		}
		rec.Status = status
		rec.StatusCode = statusCode
		rec.ContentType = contentType
		rec.Response = append([]byte(nil), body...)
		rec.UpdatedAt = time.Now().UTC()
		st.idempotency[key] = rec
		return nil
	})
}
