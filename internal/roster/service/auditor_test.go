package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"memberbase/internal/roster/allocator"
	"memberbase/internal/roster/models"
	"memberbase/internal/roster/store"
	"memberbase/pkg/domain"
	"memberbase/pkg/requestcontext"
)

type AuditorSuite struct {
	suite.Suite
	store   *store.InMemory
	service *Service
	now     time.Time
	ctx     context.Context
}

func (s *AuditorSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store, allocator.New(s.store), WithAuditConcurrency(2))
	s.now = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func TestAuditorSuite(t *testing.T) {
	suite.Run(t, new(AuditorSuite))
}

// seedMember writes a member row directly, bypassing the service, the way
// legacy imports did.
func (s *AuditorSuite) seedMember(identifier domain.Identifier) *models.Member {
	member := &models.Member{
		ID:         domain.NewMemberID(),
		Identifier: identifier,
		FullName:   "Legacy Member",
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
	s.Require().NoError(s.store.CreateMember(s.ctx, member))
	return member
}

func (s *AuditorSuite) seedSubscription(memberID domain.MemberID, start time.Time, snapshot domain.Identifier) *models.Subscription {
	sub := &models.Subscription{
		ID:                 domain.NewSubscriptionID(),
		MemberID:           memberID,
		StartDate:          start,
		DurationMonths:     1,
		EndDate:            start.AddDate(0, 1, 0),
		Status:             models.SubscriptionExpired,
		IdentifierSnapshot: snapshot,
		CreatedAt:          start,
	}
	s.Require().NoError(s.store.CreateSubscription(s.ctx, sub))
	return sub
}

// TestBackfillFromSnapshots covers the canonical drift scenario: three
// subscriptions, no ledger at all, full repair from snapshots.
func (s *AuditorSuite) TestBackfillFromSnapshots() {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	member := s.seedMember("000102")
	s.seedSubscription(member.ID, jan, "000100")
	s.seedSubscription(member.ID, mar, "000101")
	s.seedSubscription(member.ID, jun, "000102")

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.MembersChecked)
	s.Equal(1, report.Fixed)
	s.Equal(2, report.EntriesBackfilled)
	s.Empty(report.Unfixable)

	entries, err := s.store.ListHistory(s.ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(domain.Identifier("000100"), entries[0].Identifier)
	s.Equal(mar, entries[0].ChangedAt)
	s.Equal(domain.Identifier("000101"), entries[1].Identifier)
	s.Equal(jun, entries[1].ChangedAt)
}

// TestIdempotence verifies a second pass over a repaired roster is a no-op.
func (s *AuditorSuite) TestIdempotence() {
	member := s.seedMember("000020")
	s.seedSubscription(member.ID, s.now.AddDate(0, -4, 0), "000010")
	s.seedSubscription(member.ID, s.now.AddDate(0, -2, 0), "000020")

	first, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, first.EntriesBackfilled)

	second, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Zero(second.EntriesBackfilled)
	s.Zero(second.Fixed)
	s.Equal(1, second.AlreadyConsistent)

	entries, err := s.store.ListHistory(s.ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

// TestPartialLedger verifies only the missing pair entries are added.
func (s *AuditorSuite) TestPartialLedger() {
	member := s.seedMember("000032")
	first := s.seedSubscription(member.ID, s.now.AddDate(0, -6, 0), "000030")
	second := s.seedSubscription(member.ID, s.now.AddDate(0, -4, 0), "000031")
	s.seedSubscription(member.ID, s.now.AddDate(0, -2, 0), "000032")

	// The first change is already recorded; only the second is missing.
	existing, err := models.NewHistoryEntry(domain.NewHistoryID(), member.ID, first.IdentifierSnapshot, second.StartDate)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendHistory(s.ctx, existing))

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.EntriesBackfilled)

	entries, err := s.store.ListHistory(s.ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Len(entries, 2)
}

// TestMissingSnapshots verifies legacy rows without snapshots are reported,
// not papered over.
func (s *AuditorSuite) TestMissingSnapshots() {
	member := s.seedMember("000042")
	legacy := s.seedSubscription(member.ID, s.now.AddDate(0, -6, 0), "")
	s.seedSubscription(member.ID, s.now.AddDate(0, -4, 0), "000041")
	s.seedSubscription(member.ID, s.now.AddDate(0, -2, 0), "000042")

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.EntriesBackfilled)
	s.Require().Len(report.Unfixable, 1)
	s.Equal(member.ID, report.Unfixable[0].MemberID)
	s.Equal(legacy.ID, report.Unfixable[0].SubscriptionID)

	// No placeholder entry was written for the unknown identifier.
	entries, err := s.store.ListHistory(s.ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(domain.Identifier("000041"), entries[0].Identifier)
}

// TestCrossMemberProgress verifies one member's drift never blocks repairs
// elsewhere.
func (s *AuditorSuite) TestCrossMemberProgress() {
	healthy := s.seedMember("000001")
	s.seedSubscription(healthy.ID, s.now.AddDate(0, -1, 0), "000001")

	broken := s.seedMember("000002")
	s.seedSubscription(broken.ID, s.now.AddDate(0, -4, 0), "")
	s.seedSubscription(broken.ID, s.now.AddDate(0, -2, 0), "000002")

	drifted := s.seedMember("000003")
	s.seedSubscription(drifted.ID, s.now.AddDate(0, -4, 0), "000099")
	s.seedSubscription(drifted.ID, s.now.AddDate(0, -2, 0), "000003")

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, report.MembersChecked)
	s.Equal(1, report.AlreadyConsistent)
	s.Equal(1, report.Fixed)
	s.Len(report.Unfixable, 1)
}

// TestUnchangedIdentifierPairs verifies adjacent periods under the same
// identifier, as left by a renewal that kept it, imply no ledger entry.
func (s *AuditorSuite) TestUnchangedIdentifierPairs() {
	member := s.seedMember("000060")
	s.seedSubscription(member.ID, s.now.AddDate(0, -4, 0), "000060")
	s.seedSubscription(member.ID, s.now.AddDate(0, -2, 0), "000060")

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.AlreadyConsistent)
	s.Zero(report.Fixed)
	s.Zero(report.EntriesBackfilled)
	s.Empty(report.Unfixable)

	entries, err := s.store.ListHistory(s.ctx, member.ID, store.OrderAsc)
	s.Require().NoError(err)
	s.Empty(entries)
}

// TestMembersWithoutSubscriptions verifies zero-subscription members are
// consistent by definition.
func (s *AuditorSuite) TestMembersWithoutSubscriptions() {
	s.seedMember("000050")

	report, err := s.service.Audit(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.AlreadyConsistent)
	s.Zero(report.EntriesBackfilled)
}
