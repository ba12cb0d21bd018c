//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"memberbase/internal/roster/models"
	"memberbase/internal/roster/store"
	"memberbase/pkg/domain"
	"memberbase/pkg/platform/sentinel"
	"memberbase/pkg/testutil"
	"memberbase/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "identifier_history", "subscriptions", "members")
	s.Require().NoError(err)
}

func newTestMember(identifier string, at time.Time) *models.Member {
	return &models.Member{
		ID:         domain.NewMemberID(),
		Identifier: domain.Identifier(identifier),
		FullName:   "Integration Member",
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

// TestMemberRoundTrip verifies members persist and read back through SQL.
func (s *PostgresStoreSuite) TestMemberRoundTrip() {
	ctx := testutil.Context(s.T())
	member := newTestMember("000001", s.now)
	s.Require().NoError(s.store.CreateMember(ctx, member))

	found, err := s.store.FindMember(ctx, member.ID)
	s.Require().NoError(err)
	s.Equal(member.Identifier, found.Identifier)
	s.Equal(member.FullName, found.FullName)

	found, err = s.store.FindMemberByIdentifier(ctx, "000001")
	s.Require().NoError(err)
	s.Equal(member.ID, found.ID)

	_, err = s.store.FindMember(ctx, domain.NewMemberID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentIdentifierClaims verifies the unique constraint admits exactly
// one winner when many writers claim the same identifier.
func (s *PostgresStoreSuite) TestConcurrentIdentifierClaims() {
	ctx := testutil.Context(s.T())
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateMember(ctx, newTestMember("000777", s.now))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

// TestIdentifierUpdateConflict verifies reassignment honors the constraint.
func (s *PostgresStoreSuite) TestIdentifierUpdateConflict() {
	ctx := testutil.Context(s.T())
	first := newTestMember("000001", s.now)
	second := newTestMember("000002", s.now)
	s.Require().NoError(s.store.CreateMember(ctx, first))
	s.Require().NoError(s.store.CreateMember(ctx, second))

	err := s.store.UpdateMemberIdentifier(ctx, second.ID, "000001", s.now)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.store.UpdateMemberIdentifier(ctx, second.ID, "000003", s.now))
	found, err := s.store.FindMemberByIdentifier(ctx, "000003")
	s.Require().NoError(err)
	s.Equal(second.ID, found.ID)
}

// TestSubscriptionsAndSweep verifies ordering, snapshots, and the expiry sweep.
func (s *PostgresStoreSuite) TestSubscriptionsAndSweep() {
	ctx := testutil.Context(s.T())
	member := newTestMember("000001", s.now)
	s.Require().NoError(s.store.CreateMember(ctx, member))

	lapsed := &models.Subscription{
		ID:                 domain.NewSubscriptionID(),
		MemberID:           member.ID,
		StartDate:          s.now.AddDate(0, -3, 0),
		DurationMonths:     1,
		EndDate:            s.now.AddDate(0, -2, 0),
		Status:             models.SubscriptionActive,
		IdentifierSnapshot: "000009",
		CreatedAt:          s.now.AddDate(0, -3, 0),
	}
	current := &models.Subscription{
		ID:             domain.NewSubscriptionID(),
		MemberID:       member.ID,
		StartDate:      s.now,
		DurationMonths: 1,
		EndDate:        s.now.AddDate(0, 1, 0),
		Status:         models.SubscriptionActive,
		CreatedAt:      s.now,
	}
	s.Require().NoError(s.store.CreateSubscription(ctx, current))
	s.Require().NoError(s.store.CreateSubscription(ctx, lapsed))

	subs, err := s.store.ListSubscriptions(ctx, member.ID)
	s.Require().NoError(err)
	s.Require().Len(subs, 2)
	s.Equal(lapsed.ID, subs[0].ID)
	s.Equal(domain.Identifier("000009"), subs[0].IdentifierSnapshot)
	s.True(subs[1].IdentifierSnapshot.IsZero())

	flipped, err := s.store.MarkSubscriptionsExpired(ctx, s.now)
	s.Require().NoError(err)
	s.Equal(int64(1), flipped)

	subs, err = s.store.ListSubscriptions(ctx, member.ID)
	s.Require().NoError(err)
	s.Equal(models.SubscriptionExpired, subs[0].Status)
	s.Equal(models.SubscriptionActive, subs[1].Status)
}

// TestHistoryLedger verifies ledger ordering and corrective mutations.
func (s *PostgresStoreSuite) TestHistoryLedger() {
	ctx := testutil.Context(s.T())
	member := newTestMember("000001", s.now)
	s.Require().NoError(s.store.CreateMember(ctx, member))

	older := &models.HistoryEntry{
		ID:         domain.NewHistoryID(),
		MemberID:   member.ID,
		Identifier: "000010",
		ChangedAt:  s.now.AddDate(0, -2, 0),
	}
	newer := &models.HistoryEntry{
		ID:         domain.NewHistoryID(),
		MemberID:   member.ID,
		Identifier: "000011",
		ChangedAt:  s.now,
	}
	s.Require().NoError(s.store.AppendHistory(ctx, newer))
	s.Require().NoError(s.store.AppendHistory(ctx, older))

	asc, err := s.store.ListHistory(ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Require().Len(asc, 2)
	s.Equal(older.ID, asc[0].ID)

	latest, err := s.store.LatestHistory(ctx, member.ID)
	s.Require().NoError(err)
	s.Equal(newer.ID, latest.ID)

	s.Require().NoError(s.store.UpdateHistoryIdentifier(ctx, older.ID, "000012"))
	removed, err := s.store.DeleteHistorySince(ctx, member.ID, s.now.AddDate(0, -1, 0))
	s.Require().NoError(err)
	s.Equal(int64(1), removed)

	asc, err = s.store.ListHistory(ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Require().Len(asc, 1)
	s.Equal(domain.Identifier("000012"), asc[0].Identifier)
}

// TestCascadeDelete verifies child rows go with the member.
func (s *PostgresStoreSuite) TestCascadeDelete() {
	ctx := testutil.Context(s.T())
	member := newTestMember("000001", s.now)
	s.Require().NoError(s.store.CreateMember(ctx, member))
	s.Require().NoError(s.store.AppendHistory(ctx, &models.HistoryEntry{
		ID:         domain.NewHistoryID(),
		MemberID:   member.ID,
		Identifier: "000002",
		ChangedAt:  s.now,
	}))

	s.Require().NoError(s.store.DeleteMember(ctx, member.ID))

	entries, err := s.store.ListHistory(ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Empty(entries)
}

// TestTransactionRollback verifies RunInTx discards all writes on failure.
func (s *PostgresStoreSuite) TestTransactionRollback() {
	ctx := testutil.Context(s.T())
	member := newTestMember("000001", s.now)
	boom := errors.New("boom")

	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateMember(txCtx, member); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	_, err = s.store.FindMember(ctx, member.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
