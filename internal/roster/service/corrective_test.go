package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"memberbase/internal/roster/allocator"
	"memberbase/internal/roster/store"
	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
	"memberbase/pkg/requestcontext"
)

type CorrectiveSuite struct {
	suite.Suite
	store   *store.InMemory
	service *Service
	now     time.Time
	ctx     context.Context
}

func (s *CorrectiveSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store, allocator.New(s.store))
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func TestCorrectiveSuite(t *testing.T) {
	suite.Run(t, new(CorrectiveSuite))
}

func (s *CorrectiveSuite) ctxAt(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}

// renewedMember creates a member with the given identifier and renews once,
// so the ledger holds exactly the original identifier.
func (s *CorrectiveSuite) renewedMember(identifier domain.Identifier, renewAt time.Time) domain.MemberID {
	member, err := s.service.CreateMember(s.ctx, CreateMemberInput{
		FullName:       "Corrective Member",
		Identifier:     identifier,
		StartDate:      s.now,
		DurationMonths: 1,
	})
	s.Require().NoError(err)

	_, err = s.service.Renew(s.ctxAt(renewAt), RenewInput{
		MemberID:       member.ID,
		StartDate:      renewAt,
		DurationMonths: 1,
	})
	s.Require().NoError(err)
	return member.ID
}

// TestUndoLastChange verifies the superseded identifier comes back and its
// ledger entry goes away.
func (s *CorrectiveSuite) TestUndoLastChange() {
	s.Run("restores the previous identifier", func() {
		renewAt := s.now.AddDate(0, 1, 0)
		memberID := s.renewedMember("000050", renewAt)

		member, err := s.service.UndoLastChange(s.ctxAt(renewAt), memberID)
		s.Require().NoError(err)
		s.Equal(domain.Identifier("000050"), member.Identifier)

		entries, err := s.store.ListHistory(s.ctx, memberID, store.OrderAsc)
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("refuses when the old identifier was reassigned", func() {
		renewAt := s.now.AddDate(0, 1, 0)
		memberID := s.renewedMember("000060", renewAt)

		// Another member claims the superseded identifier.
		_, err := s.service.CreateMember(s.ctxAt(renewAt), CreateMemberInput{
			FullName:       "Claimant",
			Identifier:     "000060",
			StartDate:      renewAt,
			DurationMonths: 1,
		})
		s.Require().NoError(err)

		_, err = s.service.UndoLastChange(s.ctxAt(renewAt), memberID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConflict))

		// The ledger entry survives the refused undo.
		entries, err := s.store.ListHistory(s.ctx, memberID, store.OrderAsc)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})

	s.Run("empty ledger has nothing to undo", func() {
		member, err := s.service.CreateMember(s.ctx, CreateMemberInput{
			FullName:       "Fresh Member",
			StartDate:      s.now,
			DurationMonths: 1,
		})
		s.Require().NoError(err)

		_, err = s.service.UndoLastChange(s.ctx, member.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestSwapIdentifiers verifies the guarded exchange with the latest ledger
// entry.
func (s *CorrectiveSuite) TestSwapIdentifiers() {
	s.Run("swaps current and latest ledger identifiers", func() {
		renewAt := s.now.AddDate(0, 1, 0)
		memberID := s.renewedMember("000070", renewAt)

		before, err := s.store.FindMember(s.ctx, memberID)
		s.Require().NoError(err)
		current := before.Identifier

		member, err := s.service.SwapIdentifiers(s.ctxAt(renewAt), memberID, "000070")
		s.Require().NoError(err)
		s.Equal(domain.Identifier("000070"), member.Identifier)

		entries, err := s.store.ListHistory(s.ctx, memberID, store.OrderAsc)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(current, entries[0].Identifier)
	})

	s.Run("mismatched expectation aborts without effect", func() {
		renewAt := s.now.AddDate(0, 1, 0)
		memberID := s.renewedMember("000080", renewAt)

		before, err := s.store.FindMember(s.ctx, memberID)
		s.Require().NoError(err)

		_, err = s.service.SwapIdentifiers(s.ctxAt(renewAt), memberID, "000999")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		s.Contains(err.Error(), "000080")
		s.Contains(err.Error(), "000999")

		after, err := s.store.FindMember(s.ctx, memberID)
		s.Require().NoError(err)
		s.Equal(before.Identifier, after.Identifier)

		entries, err := s.store.ListHistory(s.ctx, memberID, store.OrderAsc)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(domain.Identifier("000080"), entries[0].Identifier)
	})

	s.Run("empty ledger has nothing to swap", func() {
		member, err := s.service.CreateMember(s.ctx, CreateMemberInput{
			FullName:       "No Ledger",
			StartDate:      s.now,
			DurationMonths: 1,
		})
		s.Require().NoError(err)

		_, err = s.service.SwapIdentifiers(s.ctx, member.ID, "000001")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestRevertWindow verifies the cutoff wipe and identifier repointing.
func (s *CorrectiveSuite) TestRevertWindow() {
	s.Run("removes rows at or after the cutoff and repoints", func() {
		memberID := s.renewedMember("000090", s.now.AddDate(0, 1, 0))
		secondRenew := s.now.AddDate(0, 2, 0)
		_, err := s.service.Renew(s.ctxAt(secondRenew), RenewInput{
			MemberID:       memberID,
			StartDate:      secondRenew,
			DurationMonths: 1,
		})
		s.Require().NoError(err)

		// Wipe the second renewal only.
		report, err := s.service.RevertWindow(s.ctxAt(secondRenew), memberID, secondRenew)
		s.Require().NoError(err)
		s.Equal(int64(1), report.SubscriptionsRemoved)
		s.Equal(int64(1), report.HistoryRemoved)

		// The survivor entry records the original identifier; the member's
		// current identifier repoints at it.
		member, err := s.store.FindMember(s.ctx, memberID)
		s.Require().NoError(err)
		s.Equal(domain.Identifier("000090"), member.Identifier)
		s.Equal(report.Identifier, member.Identifier)

		subs, err := s.store.ListSubscriptions(s.ctx, memberID)
		s.Require().NoError(err)
		s.Len(subs, 2)
	})

	s.Run("emptied ledger leaves the identifier unchanged", func() {
		renewAt := s.now.AddDate(0, 1, 0)
		memberID := s.renewedMember("000091", renewAt)
		member, err := s.store.FindMember(s.ctx, memberID)
		s.Require().NoError(err)
		current := member.Identifier

		report, err := s.service.RevertWindow(s.ctxAt(renewAt), memberID, s.now)
		s.Require().NoError(err)
		s.Equal(int64(2), report.SubscriptionsRemoved)
		s.Equal(int64(1), report.HistoryRemoved)

		member, err = s.store.FindMember(s.ctx, memberID)
		s.Require().NoError(err)
		s.Equal(current, member.Identifier)
	})

	s.Run("cutoff after all activity removes nothing", func() {
		renewAt := s.now.AddDate(0, 1, 0)
		memberID := s.renewedMember("000095", renewAt)

		report, err := s.service.RevertWindow(s.ctxAt(renewAt), memberID, renewAt.AddDate(1, 0, 0))
		s.Require().NoError(err)
		s.Zero(report.SubscriptionsRemoved)
		s.Zero(report.HistoryRemoved)
	})

	s.Run("requires a cutoff", func() {
		memberID := s.renewedMember("000098", s.now.AddDate(0, 1, 0))
		_, err := s.service.RevertWindow(s.ctx, memberID, time.Time{})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
