package service

import (
	"context"
	"time"

	"memberbase/internal/roster/models"
	dErrors "memberbase/pkg/domain-errors"
)

// maxBulkImportRows caps one import request; larger loads are split by the
// caller.
const maxBulkImportRows = 1000

// BulkImportRow is one member to import. Rows never carry identifiers; the
// batch allocator assigns them.
type BulkImportRow struct {
	FullName       string    `json:"full_name"`
	StartDate      time.Time `json:"start_date"`
	DurationMonths int       `json:"duration_months"`
}

// BulkImportFailure records a row that could not be imported.
type BulkImportFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BulkImportResult reports partial progress: valid rows land even when
// others fail.
type BulkImportResult struct {
	Created []*models.Member    `json:"created"`
	Failed  []BulkImportFailure `json:"failed"`
}

// BulkImport creates many members in one call. Identifiers for the whole
// batch are reserved up front so the namespace is probed once, not per row;
// each row then lands in its own transaction.
func (s *Service) BulkImport(ctx context.Context, rows []BulkImportRow) (*BulkImportResult, error) {
	start := time.Now()
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no rows to import")
	}
	if len(rows) > maxBulkImportRows {
		return nil, dErrors.New(dErrors.CodeValidation, "too many rows in one import")
	}

	identifiers, err := s.allocator.Batch(ctx, len(rows))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = s.allocator.Release(ctx, identifiers...)
	}()

	result := &BulkImportResult{}
	for i, row := range rows {
		member, err := s.CreateMember(ctx, CreateMemberInput{
			FullName:       row.FullName,
			Identifier:     identifiers[i],
			StartDate:      row.StartDate,
			DurationMonths: row.DurationMonths,
		})
		if err != nil {
			result.Failed = append(result.Failed, BulkImportFailure{Index: i, Reason: reasonFor(err)})
			continue
		}
		result.Created = append(result.Created, member)
	}

	s.logAudit(ctx, "members_imported",
		"created", len(result.Created),
		"failed", len(result.Failed))
	if s.metrics != nil {
		s.metrics.ObserveBulkImport(start)
	}
	return result, nil
}

// reasonFor renders a row failure for the import report without leaking
// internal error chains.
func reasonFor(err error) string {
	if de, ok := dErrors.Is(err); ok {
		return de.Message()
	}
	return "internal error"
}
