package domain

import (
	"fmt"
	"strconv"
)

// IdentifierWidth is the fixed width of the numeric member identifier
// namespace. Zero-padding to this width is part of the identifier's
// canonical string form; "000042" and "42" are different identifiers.
const IdentifierWidth = 6

// MaxNumericIdentifier is the largest value representable at the fixed
// width. Exceeding it is a configuration failure, not a runtime condition.
const MaxNumericIdentifier = 999999

// Identifier is the member-facing unique code. Most identifiers are
// zero-padded decimals allocated from the numeric namespace, but legacy
// and manually-assigned identifiers may be arbitrary non-empty strings;
// those live outside the numeric namespace entirely.
type Identifier string

// FormatIdentifier renders a numeric value in canonical zero-padded form.
func FormatIdentifier(n uint64) Identifier {
	return Identifier(fmt.Sprintf("%0*d", IdentifierWidth, n))
}

// Numeric parses the identifier as an unsigned integer. The second return
// is false for non-numeric (legacy/manual) identifiers, which are excluded
// from the numeric namespace.
func (i Identifier) Numeric() (uint64, bool) {
	if i == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(string(i), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsZero reports whether the identifier is unset. Subscriptions imported
// from legacy data may carry a zero identifier snapshot.
func (i Identifier) IsZero() bool { return i == "" }

func (i Identifier) String() string { return string(i) }
