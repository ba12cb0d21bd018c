package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memberbase/internal/roster/models"
	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
	"memberbase/pkg/platform/sentinel"
	"memberbase/pkg/requestcontext"
)

// UndoLastChange reverses the most recent identifier change: the member
// takes back the superseded identifier and the ledger entry recording the
// change is removed. It refuses to resurrect an identifier another member
// has since claimed.
func (s *Service) UndoLastChange(ctx context.Context, memberID domain.MemberID) (*models.Member, error) {
	now := requestcontext.Now(ctx)

	var member *models.Member
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		member, err = s.findMember(txCtx, memberID)
		if err != nil {
			return err
		}

		entry, err := s.store.LatestHistory(txCtx, memberID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "no identifier changes to undo")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest history entry")
		}

		holder, err := s.store.FindMemberByIdentifier(txCtx, entry.Identifier)
		switch {
		case err == nil && holder.ID != memberID:
			return dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("identifier %s is now assigned to another member", entry.Identifier))
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check identifier availability")
		}

		if err := s.store.DeleteHistoryEntry(txCtx, entry.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove history entry")
		}
		if err := s.store.UpdateMemberIdentifier(txCtx, memberID, entry.Identifier, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore identifier")
		}
		member.ApplyIdentifierChange(entry.Identifier, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "identifier_change_undone",
		"member_id", memberID,
		"identifier", member.Identifier)
	if s.metrics != nil {
		s.metrics.IncrementCorrectiveOp("undo_last_change")
	}
	return member, nil
}

// RevertReport summarizes what a revert-window operation removed.
type RevertReport struct {
	SubscriptionsRemoved int64             `json:"subscriptions_removed"`
	HistoryRemoved       int64             `json:"history_removed"`
	Identifier           domain.Identifier `json:"identifier"`
}

// RevertWindow discards every subscription and ledger entry recorded at or
// after the cutoff. When ledger rows were removed and older ones survive,
// the member's identifier is repointed at the newest survivor; a fully
// emptied ledger leaves the current identifier in place.
func (s *Service) RevertWindow(ctx context.Context, memberID domain.MemberID, cutoff time.Time) (*RevertReport, error) {
	if cutoff.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "cutoff is required")
	}
	now := requestcontext.Now(ctx)

	var report RevertReport
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		member, err := s.findMember(txCtx, memberID)
		if err != nil {
			return err
		}

		report.SubscriptionsRemoved, err = s.store.DeleteSubscriptionsSince(txCtx, memberID, cutoff)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove subscriptions")
		}
		report.HistoryRemoved, err = s.store.DeleteHistorySince(txCtx, memberID, cutoff)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove history entries")
		}

		report.Identifier = member.Identifier
		if report.HistoryRemoved == 0 {
			return nil
		}

		latest, err := s.store.LatestHistory(txCtx, memberID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// Ledger fully emptied; the current identifier stands.
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest history entry")
		}
		if latest.Identifier == member.Identifier {
			return nil
		}
		if err := s.store.UpdateMemberIdentifier(txCtx, memberID, latest.Identifier, now); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("identifier %s is now assigned to another member", latest.Identifier))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to repoint identifier")
		}
		report.Identifier = latest.Identifier
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "window_reverted",
		"member_id", memberID,
		"cutoff", cutoff,
		"subscriptions_removed", report.SubscriptionsRemoved,
		"history_removed", report.HistoryRemoved)
	if s.metrics != nil {
		s.metrics.IncrementCorrectiveOp("revert_window")
	}
	return &report, nil
}

// SwapIdentifiers exchanges the member's current identifier with the one in
// the latest ledger entry. The caller states which value they believe is in
// the ledger; a mismatch aborts the swap with no effect, reporting actual
// versus expected.
func (s *Service) SwapIdentifiers(ctx context.Context, memberID domain.MemberID, expectedPrior domain.Identifier) (*models.Member, error) {
	if expectedPrior.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "expected prior identifier is required")
	}
	now := requestcontext.Now(ctx)

	var member *models.Member
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		member, err = s.findMember(txCtx, memberID)
		if err != nil {
			return err
		}

		entry, err := s.store.LatestHistory(txCtx, memberID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "no identifier changes to swap")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load latest history entry")
		}
		if entry.Identifier != expectedPrior {
			return dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("latest ledger identifier is %s, expected %s", entry.Identifier, expectedPrior))
		}

		if err := s.store.UpdateHistoryIdentifier(txCtx, entry.ID, member.Identifier); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to rewrite history entry")
		}
		if err := s.store.UpdateMemberIdentifier(txCtx, memberID, entry.Identifier, now); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("identifier %s is now assigned to another member", entry.Identifier))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update member identifier")
		}
		member.ApplyIdentifierChange(entry.Identifier, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "identifiers_swapped",
		"member_id", memberID,
		"identifier", member.Identifier)
	if s.metrics != nil {
		s.metrics.IncrementCorrectiveOp("swap_identifiers")
	}
	return member, nil
}

func (s *Service) findMember(ctx context.Context, memberID domain.MemberID) (*models.Member, error) {
	member, err := s.store.FindMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	return member, nil
}
