package http

import (
	"net/http"

	"github.com/microcosm-cc/bluemonday"

	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/internal/http/middleware"
	"github.com/harrowgate/epv/internal/repository"
)

// EmailHandler serves the read paths over a user's ingested mailbox that
// exist outside the extraction pipeline: the metadata list, one
// message's metadata, and one message's stored HTML, passed through a
// sanitizer policy before it is written out.
type EmailHandler struct {
	emails   domain.EmailRepository
	content  *repository.ContentStore
	sanitize *bluemonday.Policy
}

func NewEmailHandler(emails domain.EmailRepository, content *repository.ContentStore) *EmailHandler {
	return &EmailHandler{emails: emails, content: content, sanitize: bluemonday.UGCPolicy()}
}

func (h *EmailHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/emails/list", h.list)
	mux.HandleFunc("GET /api/emails/{id}", h.get)
	mux.HandleFunc("GET /api/emails/{id}/html", h.html)
}

type emailSummary struct {
	ID         string `json:"id"`
	Registered int64  `json:"registered"`
	FromAddr   string `json:"from"`
	ToAddr     string `json:"to"`
	Subject    string `json:"subject"`
}

func (h *EmailHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.Identity(r.Context())
	if !ok {
		writeError(w, domain.Unauthorized())
		return
	}

	records, err := h.emails.ListForUser(r.Context(), user)
	if err != nil {
		writeError(w, domain.InternalErr())
		return
	}

	out := make([]emailSummary, len(records))
	for i, rec := range records {
		out[i] = emailSummary{
			ID:         rec.ID,
			Registered: rec.Registered,
			FromAddr:   rec.FromAddr,
			ToAddr:     rec.ToAddr,
			Subject:    rec.Subject,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *EmailHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.Identity(r.Context())
	if !ok {
		writeError(w, domain.Unauthorized())
		return
	}

	rec, err := h.emails.GetByID(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, emailSummary{
		ID:         rec.ID,
		Registered: rec.Registered,
		FromAddr:   rec.FromAddr,
		ToAddr:     rec.ToAddr,
		Subject:    rec.Subject,
	})
}

func (h *EmailHandler) html(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.Identity(r.Context())
	if !ok {
		writeError(w, domain.Unauthorized())
		return
	}

	id := r.PathValue("id")
	rec, err := h.emails.GetByID(r.Context(), user, id)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := h.content.ReadHTML(r.Context(), rec.HTMLPath)
	if err != nil {
		writeError(w, domain.InternalErr())
		return
	}

	clean := h.sanitize.SanitizeBytes(body)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clean)
}
