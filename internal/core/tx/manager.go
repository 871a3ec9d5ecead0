// Package tx provides transaction management abstractions.
// Domain services depend on these interfaces; implementations live in
// infrastructure/storage.
package tx

import (
	"context"
	"fmt"
	"strings"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context.
	// When SupportsTransactions is false, fn runs without atomicity and callers
	// are responsible for compensating partial work.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// SupportsTransactions reports whether multi-statement atomicity is
	// available. The value is decided once at startup and never changes.
	SupportsTransactions() bool
}

// Mode selects how transaction support is determined at startup.
type Mode string

const (
	// ModeAuto probes the database once.
	ModeAuto Mode = "auto"
	// ModeOn assumes transactions are available.
	ModeOn Mode = "on"
	// ModeOff forces the compensating fallback path.
	ModeOff Mode = "off"
)

// ParseMode parses a TX_MODE value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeOn, ModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("unknown transaction mode %q", s)
	}
}
