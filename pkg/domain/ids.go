// Package domain defines the typed identifiers shared across memberbase.
//
// Entity IDs are distinct uuid-backed types so a SubscriptionID can never be
// passed where a MemberID is expected; the compiler enforces the boundary.
// Parsing happens at trust boundaries (HTTP handlers, CLI flags) and rejects
// empty, malformed, and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "memberbase/pkg/domain-errors"
)

type (
	// MemberID identifies a member record. Stable and immutable; distinct
	// from the member-facing Identifier, which may change on renewal.
	MemberID uuid.UUID

	// SubscriptionID identifies a subscription row.
	SubscriptionID uuid.UUID

	// HistoryID identifies an identifier-history ledger entry.
	HistoryID uuid.UUID
)

func (id MemberID) String() string       { return uuid.UUID(id).String() }
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }
func (id HistoryID) String() string      { return uuid.UUID(id).String() }

func (id MemberID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SubscriptionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id HistoryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders IDs as canonical UUID strings in JSON and logs.
func (id MemberID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id SubscriptionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id HistoryID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *MemberID) UnmarshalText(text []byte) error {
	parsed, err := ParseMemberID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *SubscriptionID) UnmarshalText(text []byte) error {
	parsed, err := ParseSubscriptionID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *HistoryID) UnmarshalText(text []byte) error {
	parsed, err := ParseHistoryID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewMemberID returns a fresh random member ID.
func NewMemberID() MemberID { return MemberID(uuid.New()) }

// NewSubscriptionID returns a fresh random subscription ID.
func NewSubscriptionID() SubscriptionID { return SubscriptionID(uuid.New()) }

// NewHistoryID returns a fresh random history entry ID.
func NewHistoryID() HistoryID { return HistoryID(uuid.New()) }

// ParseMemberID parses and validates a member ID from its string form.
func ParseMemberID(s string) (MemberID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return MemberID{}, err
	}
	return MemberID(parsed), nil
}

// ParseSubscriptionID parses and validates a subscription ID from its string form.
func ParseSubscriptionID(s string) (SubscriptionID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return SubscriptionID{}, err
	}
	return SubscriptionID(parsed), nil
}

// ParseHistoryID parses and validates a history entry ID from its string form.
func ParseHistoryID(s string) (HistoryID, error) {
	parsed, err := parseUUID(s)
	if err != nil {
		return HistoryID{}, err
	}
	return HistoryID(parsed), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}
