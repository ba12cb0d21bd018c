package handler

import (
	"strings"
	"time"

	"memberbase/internal/roster/service"
	"memberbase/pkg/domain"
	dErrors "memberbase/pkg/domain-errors"
)

// CreateMemberRequest is the HTTP request body for POST /members.
// Identifier is optional; omitted means the allocator assigns one.
type CreateMemberRequest struct {
	FullName       string    `json:"full_name"`
	Identifier     string    `json:"identifier,omitempty"`
	StartDate      time.Time `json:"start_date,omitempty"`
	DurationMonths int       `json:"duration_months"`
}

// Validate checks the request and normalizes its fields.
func (r *CreateMemberRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	if r.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.DurationMonths < 1 {
		return dErrors.New(dErrors.CodeValidation, "duration_months must be at least 1")
	}
	return nil
}

// Input converts the request to a service input.
func (r *CreateMemberRequest) Input() service.CreateMemberInput {
	return service.CreateMemberInput{
		FullName:       r.FullName,
		Identifier:     domain.Identifier(r.Identifier),
		StartDate:      r.StartDate,
		DurationMonths: r.DurationMonths,
	}
}

// RenewRequest is the HTTP request body for POST /members/{memberID}/renewals.
// NewIdentifier is optional; omitted means the allocator assigns one.
type RenewRequest struct {
	StartDate      time.Time `json:"start_date,omitempty"`
	DurationMonths int       `json:"duration_months"`
	NewIdentifier  string    `json:"new_identifier,omitempty"`
}

// Validate checks the request and normalizes its fields.
func (r *RenewRequest) Validate() error {
	if r.DurationMonths < 1 {
		return dErrors.New(dErrors.CodeValidation, "duration_months must be at least 1")
	}
	r.NewIdentifier = strings.TrimSpace(r.NewIdentifier)
	return nil
}

// Input converts the request to a service input for the given member.
func (r *RenewRequest) Input(memberID domain.MemberID) service.RenewInput {
	input := service.RenewInput{
		MemberID:       memberID,
		StartDate:      r.StartDate,
		DurationMonths: r.DurationMonths,
	}
	if r.NewIdentifier != "" {
		identifier := domain.Identifier(r.NewIdentifier)
		input.NewIdentifier = &identifier
	}
	return input
}

// BulkImportRequest is the HTTP request body for POST /members/import.
type BulkImportRequest struct {
	Rows []service.BulkImportRow `json:"rows"`
}

// Validate checks the batch as a whole; per-row validation happens in the
// service so one bad row never rejects the batch.
func (r *BulkImportRequest) Validate() error {
	if len(r.Rows) == 0 {
		return dErrors.New(dErrors.CodeValidation, "rows is required")
	}
	return nil
}

// RevertWindowRequest is the HTTP request body for
// POST /members/{memberID}/corrections/revert-window.
type RevertWindowRequest struct {
	Cutoff time.Time `json:"cutoff"`
}

// Validate checks the request.
func (r *RevertWindowRequest) Validate() error {
	if r.Cutoff.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "cutoff is required")
	}
	return nil
}

// SwapIdentifiersRequest is the HTTP request body for
// POST /members/{memberID}/corrections/swap-identifiers.
type SwapIdentifiersRequest struct {
	ExpectedPrior string `json:"expected_prior"`
}

// Validate checks the request and normalizes its fields.
func (r *SwapIdentifiersRequest) Validate() error {
	r.ExpectedPrior = strings.TrimSpace(r.ExpectedPrior)
	if r.ExpectedPrior == "" {
		return dErrors.New(dErrors.CodeValidation, "expected_prior is required")
	}
	return nil
}
