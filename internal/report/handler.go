package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"litlink/internal/logging"
	"litlink/internal/middleware"
	"litlink/internal/notification"
)

// Notifier is the slice of the fan-out the report feature triggers after its
// own commits.
type Notifier interface {
	NotifyNewReport(ctx context.Context, reportID uuid.UUID, category, reportPriority string) error
	NotifyReportResolved(ctx context.Context, reporterID, reportID uuid.UUID, resolution string) error
}

type Handler struct {
	repo     *Repository
	notifier Notifier
	validate *validator.Validate
}

func NewHandler(repo *Repository, notifier Notifier) *Handler {
	return &Handler{
		repo:     repo,
		notifier: notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Create handles POST /api/reports. After the report row commits, every
// admin is notified; an urgent report keeps its urgency on the
// notification.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	priority := req.Priority
	if priority == "" {
		priority = notification.PriorityHigh
	}

	rep := &Report{
		ReporterID: identity.ID,
		TargetID:   uuid.MustParse(req.TargetID),
		Category:   req.Category,
		Reason:     req.Reason,
		Priority:   priority,
	}
	rep, err := h.repo.Create(r.Context(), rep)
	if err != nil {
		logging.Error().Err(err).Msg("creating report failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.notifier.NotifyNewReport(r.Context(), rep.ID, rep.Category, rep.Priority); err != nil {
		logging.Warn().Err(err).Str("report_id", rep.ID.String()).Msg("report fan-out failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rep)
}

// ListOpen handles GET /api/admin/reports.
func (h *Handler) ListOpen(w http.ResponseWriter, r *http.Request) {
	reports, err := h.repo.ListOpen(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("listing reports failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reports)
}

// Resolve handles POST /api/admin/reports/{id}/resolve and notifies the
// reporter afterwards.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	reportID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid report id", http.StatusBadRequest)
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := h.repo.Resolve(r.Context(), reportID, identity.ID, req.Resolution)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		logging.Error().Err(err).Msg("resolving report failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.notifier.NotifyReportResolved(r.Context(), rep.ReporterID, rep.ID, req.Resolution); err != nil {
		logging.Warn().Err(err).Str("report_id", rep.ID.String()).Msg("resolution fan-out failed")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rep)
}
