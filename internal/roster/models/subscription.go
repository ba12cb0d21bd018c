package models

import (
	"time"

	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
)

// SubscriptionStatus is the lazily-maintained lifecycle state of a
// subscription. Transitions are monotone: active -> expired, never back.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// Subscription is one membership period. A member accrues one subscription
// on signup and one per renewal, ordered by StartDate.
//
// IdentifierSnapshot captures the member's identifier at the moment the
// subscription was created. It is the only durable record of which
// identifier a period ran under, and the auditor's sole backfill source.
// Legacy rows imported before snapshots existed carry an empty snapshot.
type Subscription struct {
	ID                 domain.SubscriptionID `json:"id"`
	MemberID           domain.MemberID       `json:"member_id"`
	StartDate          time.Time             `json:"start_date"`
	DurationMonths     int                   `json:"duration_months"`
	EndDate            time.Time             `json:"end_date"`
	Status             SubscriptionStatus    `json:"status"`
	IdentifierSnapshot domain.Identifier     `json:"identifier_snapshot,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
}

// NewSubscription validates and constructs a subscription. EndDate is
// derived with calendar-month arithmetic and the initial status reflects
// "now": a back-dated renewal may be born expired.
func NewSubscription(id domain.SubscriptionID, memberID domain.MemberID, startDate time.Time, durationMonths int, snapshot domain.Identifier, now time.Time) (*Subscription, error) {
	if durationMonths < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subscription duration must be at least one month")
	}
	if startDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subscription start date is required")
	}

	endDate := startDate.AddDate(0, durationMonths, 0)
	return &Subscription{
		ID:                 id,
		MemberID:           memberID,
		StartDate:          startDate,
		DurationMonths:     durationMonths,
		EndDate:            endDate,
		Status:             statusAt(endDate, now),
		IdentifierSnapshot: snapshot,
		CreatedAt:          now,
	}, nil
}

// StatusAt evaluates the effective status at the given time without
// mutating the row. Used by read paths that want fresh status before the
// lazy sweep has run.
func (s *Subscription) StatusAt(now time.Time) SubscriptionStatus {
	if s.Status == SubscriptionExpired {
		return SubscriptionExpired
	}
	return statusAt(s.EndDate, now)
}

// IsExpiredAt reports whether the subscription has lapsed as of now.
func (s *Subscription) IsExpiredAt(now time.Time) bool {
	return s.StatusAt(now) == SubscriptionExpired
}

func statusAt(endDate, now time.Time) SubscriptionStatus {
	if endDate.After(now) {
		return SubscriptionActive
	}
	return SubscriptionExpired
}
