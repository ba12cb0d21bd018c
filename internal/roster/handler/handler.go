// Package handler exposes the roster service over HTTP. Handlers decode and
// validate request bodies, parse IDs at the trust boundary, and delegate
// everything else to the service; errors flow back through the coded-error
// to status mapping in httputil.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"memberbase/internal/roster/gaps"
	"memberbase/internal/roster/models"
	"memberbase/internal/roster/service"
	"memberbase/pkg/domain"
	"memberbase/pkg/platform/httputil"
	"memberbase/pkg/requestcontext"
)

// Service defines the roster operations the handlers expose.
type Service interface {
	CreateMember(ctx context.Context, input service.CreateMemberInput) (*models.Member, error)
	GetMember(ctx context.Context, id domain.MemberID) (*service.MemberDetails, error)
	ListMembers(ctx context.Context) ([]*models.Member, error)
	DeleteMember(ctx context.Context, id domain.MemberID) error
	Renew(ctx context.Context, input service.RenewInput) (*models.Subscription, error)
	History(ctx context.Context, id domain.MemberID) ([]*models.HistoryEntry, error)
	BulkImport(ctx context.Context, rows []service.BulkImportRow) (*service.BulkImportResult, error)
	GapReport(ctx context.Context) (gaps.Report, error)
	Audit(ctx context.Context) (*service.AuditReport, error)
	UndoLastChange(ctx context.Context, id domain.MemberID) (*models.Member, error)
	RevertWindow(ctx context.Context, id domain.MemberID, cutoff time.Time) (*service.RevertReport, error)
	SwapIdentifiers(ctx context.Context, id domain.MemberID, expectedPrior domain.Identifier) (*models.Member, error)
}

// Handler wires roster endpoints to the roster service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a roster handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts roster endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/members", func(r chi.Router) {
		r.Post("/", h.HandleCreateMember)
		r.Get("/", h.HandleListMembers)
		r.Post("/import", h.HandleBulkImport)
		r.Route("/{memberID}", func(r chi.Router) {
			r.Get("/", h.HandleGetMember)
			r.Delete("/", h.HandleDeleteMember)
			r.Post("/renewals", h.HandleRenew)
			r.Get("/history", h.HandleHistory)
			r.Route("/corrections", func(r chi.Router) {
				r.Post("/undo-last-change", h.HandleUndoLastChange)
				r.Post("/revert-window", h.HandleRevertWindow)
				r.Post("/swap-identifiers", h.HandleSwapIdentifiers)
			})
		})
	})
	r.Get("/reports/gaps", h.HandleGapReport)
	r.Post("/audits", h.HandleAudit)
}

// HandleCreateMember handles POST /members.
func (h *Handler) HandleCreateMember(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[CreateMemberRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.service.CreateMember(r.Context(), req.Input())
	if err != nil {
		h.logError(r.Context(), "create member failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, member)
}

// HandleGetMember handles GET /members/{memberID}.
func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	details, err := h.service.GetMember(r.Context(), memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

// HandleListMembers handles GET /members.
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.logError(r.Context(), "list members failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MembersResponse{Members: members})
}

// HandleDeleteMember handles DELETE /members/{memberID}.
func (h *Handler) HandleDeleteMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteMember(r.Context(), memberID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRenew handles POST /members/{memberID}/renewals.
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[RenewRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sub, err := h.service.Renew(r.Context(), req.Input(memberID))
	if err != nil {
		h.logError(r.Context(), "renewal failed", err, "member_id", memberID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sub)
}

// HandleHistory handles GET /members/{memberID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

// HandleBulkImport handles POST /members/import.
func (h *Handler) HandleBulkImport(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[BulkImportRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.BulkImport(r.Context(), req.Rows)
	if err != nil {
		h.logError(r.Context(), "bulk import failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromImportResult(result))
}

// HandleGapReport handles GET /reports/gaps.
func (h *Handler) HandleGapReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GapReport(r.Context())
	if err != nil {
		h.logError(r.Context(), "gap report failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleAudit handles POST /audits.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Audit(r.Context())
	if err != nil {
		h.logError(r.Context(), "audit failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleUndoLastChange handles POST /members/{memberID}/corrections/undo-last-change.
func (h *Handler) HandleUndoLastChange(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	member, err := h.service.UndoLastChange(r.Context(), memberID)
	if err != nil {
		h.logError(r.Context(), "undo last change failed", err, "member_id", memberID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, member)
}

// HandleRevertWindow handles POST /members/{memberID}/corrections/revert-window.
func (h *Handler) HandleRevertWindow(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[RevertWindowRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.service.RevertWindow(r.Context(), memberID, req.Cutoff)
	if err != nil {
		h.logError(r.Context(), "revert window failed", err, "member_id", memberID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleSwapIdentifiers handles POST /members/{memberID}/corrections/swap-identifiers.
func (h *Handler) HandleSwapIdentifiers(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.memberID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[SwapIdentifiersRequest](w, r, h.logger)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.service.SwapIdentifiers(r.Context(), memberID, domain.Identifier(req.ExpectedPrior))
	if err != nil {
		h.logError(r.Context(), "swap identifiers failed", err, "member_id", memberID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) memberID(w http.ResponseWriter, r *http.Request) (domain.MemberID, bool) {
	memberID, err := domain.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.MemberID{}, false
	}
	return memberID, true
}

func (h *Handler) logError(ctx context.Context, msg string, err error, args ...any) {
	if h.logger == nil {
		return
	}
	args = append(args, "error", err)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	h.logger.ErrorContext(ctx, msg, args...)
}
