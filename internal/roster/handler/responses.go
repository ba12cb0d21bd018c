package handler

import (
	"memberbase/internal/roster/models"
	"memberbase/internal/roster/service"
)

// MembersResponse is the HTTP response for GET /members.
type MembersResponse struct {
	Members []*models.Member `json:"members"`
}

// HistoryResponse is the HTTP response for GET /members/{memberID}/history.
type HistoryResponse struct {
	Entries []*models.HistoryEntry `json:"entries"`
}

// ImportResponse is the HTTP response for POST /members/import.
type ImportResponse struct {
	Created int                         `json:"created"`
	Failed  []service.BulkImportFailure `json:"failed"`
	Members []*models.Member            `json:"members"`
}

// FromImportResult converts a service import result to an HTTP response.
func FromImportResult(result *service.BulkImportResult) *ImportResponse {
	return &ImportResponse{
		Created: len(result.Created),
		Failed:  result.Failed,
		Members: result.Created,
	}
}
