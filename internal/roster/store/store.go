// Package store persists the roster aggregates: members, subscriptions, and
// the identifier history ledger. Two implementations exist: an in-memory
// store for unit tests and single-process use, and a PostgreSQL store for
// production.
//
// Stores return pkg/platform/sentinel errors for infrastructure facts
// (ErrNotFound, ErrConflict); the service layer translates them into coded
// domain errors. Identifier uniqueness is the one cross-member invariant and
// is enforced here, by unique constraint in PostgreSQL and by an index map in
// memory, so concurrent writers serialize on reject-on-conflict rather than
// application-level locking.
package store

import (
	"context"
	"time"

	"memberbase/internal/roster/models"
	"memberbase/pkg/domain"
)

// Order selects listing direction for ledger queries.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Store is the persistence boundary for the roster module.
//
// Every read-then-write sequence in the service layer runs inside RunInTx;
// no intermediate state is observable by concurrent readers. The ledger
// mutation methods (DeleteHistoryEntry, UpdateHistoryIdentifier,
// DeleteHistorySince) exist solely for the corrective operations and must
// never be called from the normal renewal path.
type Store interface {
	// RunInTx executes fn atomically. The context passed to fn carries the
	// transaction; store calls made with it join the same transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Members.
	CreateMember(ctx context.Context, member *models.Member) error
	FindMember(ctx context.Context, id domain.MemberID) (*models.Member, error)
	FindMemberByIdentifier(ctx context.Context, identifier domain.Identifier) (*models.Member, error)
	ListMembers(ctx context.Context) ([]*models.Member, error)
	UpdateMemberIdentifier(ctx context.Context, id domain.MemberID, identifier domain.Identifier, now time.Time) error
	DeleteMember(ctx context.Context, id domain.MemberID) error
	// ListIdentifiers returns every current member identifier, the
	// allocator's and gap analyzer's view of the namespace.
	ListIdentifiers(ctx context.Context) ([]domain.Identifier, error)

	// Subscriptions.
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	// ListSubscriptions returns a member's subscriptions ordered ascending
	// by start date.
	ListSubscriptions(ctx context.Context, memberID domain.MemberID) ([]*models.Subscription, error)
	// MarkSubscriptionsExpired is the lazy status sweep: it flips every
	// active subscription whose end date has passed. Idempotent.
	MarkSubscriptionsExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteSubscriptionsSince(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (int64, error)

	// Identifier history ledger.
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	ListHistory(ctx context.Context, memberID domain.MemberID, order Order) ([]*models.HistoryEntry, error)
	// LatestHistory returns the most recent ledger entry for a member, or
	// sentinel.ErrNotFound when the ledger is empty.
	LatestHistory(ctx context.Context, memberID domain.MemberID) (*models.HistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id domain.HistoryID) error
	UpdateHistoryIdentifier(ctx context.Context, id domain.HistoryID, identifier domain.Identifier) error
	DeleteHistorySince(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (int64, error)
}
