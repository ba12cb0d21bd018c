package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "memberbase/pkg/domain-errors"
)

// TestParseUUID_Invariants validates ID parsing at trust boundaries:
// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseMemberID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseMemberID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseMemberID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseMemberID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, MemberID(validUUID), id)
	})
}

// TestJSONRoundTrip verifies IDs marshal as canonical UUID strings.
func TestJSONRoundTrip(t *testing.T) {
	id := NewSubscriptionID()

	encoded, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(encoded))

	var decoded SubscriptionID
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, id, decoded)
}

// TestTypeDistinction verifies the compiler enforces type safety between
// the three ID kinds.
func TestTypeDistinction(t *testing.T) {
	memberID := MemberID(uuid.New())
	historyID := HistoryID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ MemberID = historyID   // compile error
	// var _ HistoryID = memberID   // compile error

	assert.NotEqual(t, uuid.UUID(memberID), uuid.UUID(historyID))
}

func TestIsNil(t *testing.T) {
	assert.True(t, MemberID{}.IsNil())
	assert.False(t, NewMemberID().IsNil())
}
