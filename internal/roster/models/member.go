package models

import (
	"strings"
	"time"

	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
)

// Member is the aggregate root for a gym member.
//
// Invariants:
//   - Identifier is non-empty and globally unique across members
//   - Identifier changes only through the renewal transition or a
//     corrective operation, never by direct field writes
//   - ID and CreatedAt are immutable after construction
//
// # Pairing Invariant
//
// The member's mutable Identifier and its append-only history ledger evolve
// together: every identifier change on the normal path appends exactly one
// ledger entry holding the superseded value. For a member with N
// subscriptions the ledger is expected to hold N-1 entries. Writers outside
// the service layer (legacy imports, manual patches) can break this; the
// consistency auditor repairs what the subscription snapshots allow and
// reports the rest.
type Member struct {
	ID         domain.MemberID   `json:"id"`
	Identifier domain.Identifier `json:"identifier"`
	FullName   string            `json:"full_name"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewMember validates and constructs a member with its initial identifier.
func NewMember(id domain.MemberID, identifier domain.Identifier, fullName string, now time.Time) (*Member, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "member name cannot be empty")
	}
	if len(fullName) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "member name must be 128 characters or less")
	}
	if identifier.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "member identifier cannot be empty")
	}
	return &Member{
		ID:         id,
		Identifier: identifier,
		FullName:   fullName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ApplyIdentifierChange overwrites the current identifier. Callers must have
// appended the superseding ledger entry in the same transaction.
func (m *Member) ApplyIdentifierChange(identifier domain.Identifier, now time.Time) {
	m.Identifier = identifier
	m.UpdatedAt = now
}
