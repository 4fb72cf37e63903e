package posting

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/moldworks-erp/moldworks-erp/internal/ap"
	"github.com/moldworks-erp/moldworks-erp/internal/ar"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/platform/httpx"
)

// Handler exposes the posting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches the event posting route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/events", h.PostEvent)
}

// MountJournalRoutes attaches the journal lookup route.
func (h *Handler) MountJournalRoutes(r chi.Router) {
	r.Get("/journals/{no}", h.GetJournal)
}

// PostEvent accepts a business event and posts it to the ledger. Replays of
// an already posted key return 200 with the original result; a first posting
// returns 201.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req PostEventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	input, err := req.ToInput()
	if err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "due_date must be YYYY-MM-DD")
		return
	}

	res, err := h.service.PostEvent(r.Context(), input)
	if err != nil {
		h.respondError(w, r, input, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, newPostEventResponse(res))
}

// GetJournal serves one journal entry with its lines by document number.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	journalNo := chi.URLParam(r, "no")
	entry, err := h.service.GetJournalByNo(r.Context(), journalNo)
	if err != nil {
		if errors.Is(err, ledger.ErrJournalNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "journal entry not found")
			return
		}
		h.logger.Error("get journal", slog.Any("error", err), slog.String("journal_no", journalNo))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, input PostInput, err error) {
	switch {
	case errors.Is(err, ErrUnknownEventType),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrUnbalanced):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Posting Rejected", err.Error())
	case errors.Is(err, ar.ErrOverpayment), errors.Is(err, ap.ErrOverpayment):
		httpx.Problem(w, http.StatusConflict, "Overpayment", err.Error())
	case errors.Is(err, ar.ErrItemNotFound), errors.Is(err, ap.ErrItemNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("post event",
			slog.Any("error", err),
			slog.String("event_type", string(input.EventType)),
			slog.String("source_no", input.SourceNo))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// PostEventResponse is the JSON body returned by PostEvent.
type PostEventResponse struct {
	JournalEntry ledger.JournalEntry `json:"journal_entry"`
	EventID      string              `json:"event_id"`
	Replayed     bool                `json:"replayed"`
	ARItem       *ar.OpenItem        `json:"ar_item,omitempty"`
	APItem       *ap.OpenItem        `json:"ap_item,omitempty"`
}

func newPostEventResponse(res PostResult) PostEventResponse {
	return PostEventResponse{
		JournalEntry: res.JournalEntry,
		EventID:      res.Event.ID.String(),
		Replayed:     res.Replayed,
		ARItem:       res.ARItem,
		APItem:       res.APItem,
	}
}
