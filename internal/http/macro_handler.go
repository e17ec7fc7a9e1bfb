package http

import (
	"net/http"

	"github.com/harrowgate/epv/internal/domain"
)

// MacroHandler exposes the configured macro catalog read-only, so a
// script-authoring client can list the named action sequences it may
// reference via Macro(name).
type MacroHandler struct {
	macros domain.MacroRepository
}

func NewMacroHandler(macros domain.MacroRepository) *MacroHandler {
	return &MacroHandler{macros: macros}
}

func (h *MacroHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/macros/list", h.list)
	mux.HandleFunc("GET /api/macros/{name}", h.get)
}

func (h *MacroHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.macros.List())
}

func (h *MacroHandler) get(w http.ResponseWriter, r *http.Request) {
	macro, ok := h.macros.Find(r.PathValue("name"))
	if !ok {
		writeError(w, domain.NotFound())
		return
	}
	writeJSON(w, http.StatusOK, macro)
}
