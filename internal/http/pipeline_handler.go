package http

import (
	"net/http"

	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/internal/http/middleware"
	"github.com/harrowgate/epv/internal/service/pipeline"
)

// PipelineHandler runs the extraction pipeline engine against the
// authenticated caller's mailbox and serializes the result either as a
// structured element tree or, when the caller asks for tabular output,
// as CSV rows via the shaper.
type PipelineHandler struct {
	facade *pipeline.Facade
}

func NewPipelineHandler(facade *pipeline.Facade) *PipelineHandler {
	return &PipelineHandler{facade: facade}
}

func (h *PipelineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/emails/execute-script", h.execute)
}

// execute accepts {"actions": [...]} and returns a JSON array of
// serialized elements by default, or CSV rows when the request asks for
// "?format=csv".
func (h *PipelineHandler) execute(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.Identity(r.Context())
	if !ok {
		writeError(w, domain.Unauthorized())
		return
	}

	var script domain.Script
	if err := decodeJSON(w, r, &script); err != nil {
		writeError(w, domain.InvalidInput("malformed script"))
		return
	}

	results, err := h.facade.Execute(r.Context(), user, script)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeRows(w, pipeline.Flatten(results))
		return
	}

	serialized := make([]domain.SerializableElement, len(results))
	for i, el := range results {
		serialized[i] = el.Serialize()
	}
	writeJSON(w, http.StatusOK, serialized)
}
