package entity

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
)

// Document is the base type for workflow documents (transfers, purchase
// invoices, stock requests). Status lives on the concrete type; the base keeps
// the number, business date and the append-only status history.
type Document struct {
	BaseDocument

	// Number is the human-readable identifier (e.g. CHN-202501-0001)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Note is an optional free-form comment
	Note string `db:"note" json:"note,omitempty"`

	// History records every status transition, oldest first
	History StatusHistory `db:"status_history" json:"history"`
}

// NewDocument creates a new Document with generated ID.
func NewDocument() Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		History:      StatusHistory{},
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}
	return nil
}

// StatusChange is one entry of a document's status history.
type StatusChange struct {
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	Action  string    `json:"action"`
	ActorID string    `json:"actorId,omitempty"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// StatusHistory is stored as JSONB next to the document header.
type StatusHistory []StatusChange

// RecordTransition appends a status change and stamps the updater.
func (d *Document) RecordTransition(from, to, action, actorID, note string) {
	d.History = append(d.History, StatusChange{
		From:    from,
		To:      to,
		Action:  action,
		ActorID: actorID,
		Note:    note,
		At:      time.Now().UTC(),
	})
	if actorID != "" {
		d.UpdatedBy = actorID
	}
}

// Last returns the most recent status change, if any.
func (h StatusHistory) Last() (StatusChange, bool) {
	if len(h) == 0 {
		return StatusChange{}, false
	}
	return h[len(h)-1], true
}
