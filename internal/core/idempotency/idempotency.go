// Package idempotency defines the store contract behind the
// X-Idempotency-Key header and the decision rules shared by its drivers.
package idempotency

import (
	"context"
	"net/http"
	"time"

	"stockledger/internal/core/apperror"
)

// Status represents the state of an idempotent operation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// StaleAfter is how long a pending key may go without progress before another
// request may reclaim it.
const StaleAfter = time.Minute

// Record is one stored key.
type Record struct {
	Key         string    `db:"idempotency_key"`
	ActorID     string    `db:"actor_id"`
	Operation   string    `db:"operation"`
	Status      Status    `db:"status"`
	RequestHash string    `db:"request_hash"`
	Response    []byte    `db:"response"`
	StatusCode  int       `db:"response_status"`
	ContentType string    `db:"response_content_type"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}

// Replay is a cached response served instead of running the request again.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Request identifies the caller of Acquire.
type Request struct {
	Key         string
	ActorID     string
	Operation   string
	RequestHash string
}

// Store persists keys.
//
// Acquire returns (nil, nil) when the caller now owns the key, a Replay when
// the operation already finished, and an IDEMPOTENCY_CONFLICT AppError when
// the key is in flight or was used for a different request.
type Store interface {
	Acquire(ctx context.Context, req Request) (*Replay, error)
	Complete(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	Fail(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
}

// Outcome is what Decide concluded about an existing record.
type Outcome int

const (
	OutcomeReplay Outcome = iota
	OutcomeReclaim
	OutcomeInFlight
)

// Decide applies the reuse rules to a key that already existed.
func Decide(rec *Record, req Request, now time.Time) (Outcome, error) {
	if rec.ActorID != req.ActorID || rec.Operation != req.Operation || rec.RequestHash != req.RequestHash {
		return OutcomeInFlight, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", req.Operation)
	}
	switch rec.Status {
	case StatusSuccess, StatusFailed:
		return OutcomeReplay, nil
	case StatusPending:
		if now.Sub(rec.UpdatedAt) > StaleAfter {
			return OutcomeReclaim, nil
		}
	}
	return OutcomeInFlight, ErrInFlight(req.Key)
}

// ErrInFlight is returned while another request holds the key.
func ErrInFlight(key string) error {
	return apperror.NewIdempotencyConflict(key)
}

// ReplayOf builds the cached response of a finished record.
func ReplayOf(rec *Record) *Replay {
	r := &Replay{StatusCode: rec.StatusCode, ContentType: rec.ContentType, Body: rec.Response}
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}
