package models

import (
	"time"

	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
)

// HistoryEntry is one row of the append-only identifier ledger: the
// identifier a member held immediately before a change, and when it was
// superseded. Entries are immutable once written except through the
// narrowly-scoped corrective operations.
type HistoryEntry struct {
	ID         domain.HistoryID  `json:"id"`
	MemberID   domain.MemberID   `json:"member_id"`
	Identifier domain.Identifier `json:"identifier"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// NewHistoryEntry validates and constructs a ledger entry.
func NewHistoryEntry(id domain.HistoryID, memberID domain.MemberID, identifier domain.Identifier, changedAt time.Time) (*HistoryEntry, error) {
	if identifier.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "history entry identifier cannot be empty")
	}
	if changedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "history entry change time is required")
	}
	return &HistoryEntry{
		ID:         id,
		MemberID:   memberID,
		Identifier: identifier,
		ChangedAt:  changedAt,
	}, nil
}

// DedupeKey is the identity backfill writers check before appending: the
// superseded identifier plus the change date truncated to the day. The
// ledger itself has no uniqueness constraint beyond its surrogate id.
func (h *HistoryEntry) DedupeKey() string {
	return DedupeKey(h.Identifier, h.ChangedAt)
}

// DedupeKey builds the (identifier, day) backfill dedupe key.
func DedupeKey(identifier domain.Identifier, changedAt time.Time) string {
	return identifier.String() + "@" + changedAt.Format("2006-01-02")
}
