package http

import (
	"net/http"
	"time"

	"github.com/harrowgate/epv/internal/http/middleware"
	"github.com/harrowgate/epv/pkg/logger"
)

// sessionTTL is how long a token issued by /api/auth/verify is accepted
// by the Auth middleware before the caller must present Basic/query
// credentials again.
const sessionTTL = 24 * time.Hour

// AuthHandler backs the one endpoint a caller hits to exchange working
// Basic/query credentials for a bearer session token, so a browser
// client doesn't have to resend the password on every request. The
// credential check itself runs earlier, in middleware.Auth: by the time
// verify's handler runs, the caller is already known good.
type AuthHandler struct {
	jwtSecret []byte
	log       logger.Logger
}

func NewAuthHandler(jwtSecret []byte, log logger.Logger) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret, log: log}
}

func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/verify", h.verify)
}

type verifyResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request) {
	username, _ := middleware.Identity(r.Context())

	token, err := middleware.IssueToken(h.jwtSecret, username, sessionTTL)
	if err != nil {
		h.log.WithField("error", err.Error()).Error("failed to sign session token")
		writeJSON(w, http.StatusOK, verifyResponse{Username: username})
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Username: username, Token: token})
}
