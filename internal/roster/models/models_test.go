package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
)

var now = time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)

func TestNewMember(t *testing.T) {
	t.Run("valid member", func(t *testing.T) {
		member, err := NewMember(domain.NewMemberID(), "000001", "  Jane Doe  ", now)
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", member.FullName)
		assert.Equal(t, domain.Identifier("000001"), member.Identifier)
		assert.Equal(t, now, member.CreatedAt)
	})

	t.Run("rejects blank name", func(t *testing.T) {
		_, err := NewMember(domain.NewMemberID(), "000001", "   ", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects overlong name", func(t *testing.T) {
		_, err := NewMember(domain.NewMemberID(), "000001", strings.Repeat("x", 129), now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects empty identifier", func(t *testing.T) {
		_, err := NewMember(domain.NewMemberID(), "", "Jane Doe", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestNewSubscription(t *testing.T) {
	memberID := domain.NewMemberID()

	t.Run("derives end date with calendar months", func(t *testing.T) {
		start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
		sub, err := NewSubscription(domain.NewSubscriptionID(), memberID, start, 1, "000001", now)
		require.NoError(t, err)
		// January 31 plus one calendar month normalizes to March 2.
		assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), sub.EndDate)
	})

	t.Run("active when the end date is ahead", func(t *testing.T) {
		sub, err := NewSubscription(domain.NewSubscriptionID(), memberID, now, 12, "000001", now)
		require.NoError(t, err)
		assert.Equal(t, SubscriptionActive, sub.Status)
	})

	t.Run("back-dated subscription is born expired", func(t *testing.T) {
		start := now.AddDate(0, -3, 0)
		sub, err := NewSubscription(domain.NewSubscriptionID(), memberID, start, 1, "000001", now)
		require.NoError(t, err)
		assert.Equal(t, SubscriptionExpired, sub.Status)
	})

	t.Run("rejects non-positive duration", func(t *testing.T) {
		_, err := NewSubscription(domain.NewSubscriptionID(), memberID, now, 0, "000001", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects zero start date", func(t *testing.T) {
		_, err := NewSubscription(domain.NewSubscriptionID(), memberID, time.Time{}, 1, "000001", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestSubscriptionStatusAt(t *testing.T) {
	sub, err := NewSubscription(domain.NewSubscriptionID(), domain.NewMemberID(), now, 1, "000001", now)
	require.NoError(t, err)

	assert.Equal(t, SubscriptionActive, sub.StatusAt(now))
	assert.Equal(t, SubscriptionExpired, sub.StatusAt(now.AddDate(0, 1, 0)))
	assert.True(t, sub.IsExpiredAt(now.AddDate(0, 2, 0)))

	// The transition is monotone: a swept row stays expired even for reads
	// dated before its end.
	sub.Status = SubscriptionExpired
	assert.Equal(t, SubscriptionExpired, sub.StatusAt(now))
}

func TestHistoryEntry(t *testing.T) {
	t.Run("valid entry", func(t *testing.T) {
		entry, err := NewHistoryEntry(domain.NewHistoryID(), domain.NewMemberID(), "000042", now)
		require.NoError(t, err)
		assert.Equal(t, "000042@2024-02-10", entry.DedupeKey())
	})

	t.Run("rejects empty identifier", func(t *testing.T) {
		_, err := NewHistoryEntry(domain.NewHistoryID(), domain.NewMemberID(), "", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects zero change time", func(t *testing.T) {
		_, err := NewHistoryEntry(domain.NewHistoryID(), domain.NewMemberID(), "000042", time.Time{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("dedupe key truncates to the day", func(t *testing.T) {
		morning := DedupeKey("000001", time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC))
		evening := DedupeKey("000001", time.Date(2024, 2, 10, 22, 30, 0, 0, time.UTC))
		assert.Equal(t, morning, evening)
	})
}
