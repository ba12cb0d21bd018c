// Package gaps analyzes the numeric identifier namespace for holes left by
// member deletions. The report is operator-facing: the forward-only
// allocator never fills these gaps, so they only ever grow.
package gaps

import (
	"fmt"
	"sort"

	"memberbase/pkg/domain"
)

// floor is the lower bound of the scan. The namespace conceptually starts
// at 1 regardless of the smallest identifier currently assigned, so a
// roster whose first member is 000005 reports 000001 - 000004 as a gap.
const floor uint64 = 1

// Report describes the occupied numeric namespace and its gaps.
type Report struct {
	// Empty is set when no numeric identifiers exist at all. The remaining
	// fields are zero in that case.
	Empty bool `json:"empty"`
	// Min is the namespace floor in canonical form, fixed at 000001
	// whenever any numeric identifier exists; Max is the highest occupied
	// value.
	Min domain.Identifier `json:"min,omitempty"`
	Max domain.Identifier `json:"max,omitempty"`
	// TotalIdentifiers counts distinct occupied numeric identifiers.
	TotalIdentifiers int `json:"total_identifiers"`
	// Gaps lists unoccupied ranges between the floor and Max, each either a
	// single identifier ("000002") or an inclusive range
	// ("000002 - 000005").
	Gaps []string `json:"gaps"`
}

// Analyze scans the given identifiers and reports every hole between the
// namespace floor and the highest occupied value. Non-numeric identifiers
// are outside the namespace and ignored.
func Analyze(identifiers []domain.Identifier) Report {
	occupied := make(map[uint64]struct{})
	for _, identifier := range identifiers {
		numeric, ok := identifier.Numeric()
		if !ok {
			continue
		}
		occupied[numeric] = struct{}{}
	}
	if len(occupied) == 0 {
		return Report{Empty: true}
	}

	values := make([]uint64, 0, len(occupied))
	for v := range occupied {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	report := Report{
		Min:              domain.FormatIdentifier(floor),
		Max:              domain.FormatIdentifier(values[len(values)-1]),
		TotalIdentifiers: len(values),
		Gaps:             []string{},
	}

	next := floor
	for _, v := range values {
		if v > next {
			report.Gaps = append(report.Gaps, formatGap(next, v-1))
		}
		next = v + 1
	}
	return report
}

func formatGap(from, to uint64) string {
	if from == to {
		return domain.FormatIdentifier(from).String()
	}
	return fmt.Sprintf("%s - %s", domain.FormatIdentifier(from), domain.FormatIdentifier(to))
}
