// Package middleware holds the HTTP middleware chain every protected
// route in this service runs through: credential authentication,
// per-client-IP rate limiting, and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/harrowgate/epv/config"
	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/pkg/logger"
)

type identityKey struct{}

// Identity returns the authenticated username from ctx, set by Auth.
func Identity(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(identityKey{}).(string)
	return u, ok
}

// SessionClaims is the JWT payload /api/auth/verify issues once a
// caller's Basic/query credentials have checked out, so a browser
// client can avoid resending the password on every following request.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for username valid for ttl, using
// secret as the HMAC key.
func IssueToken(secret []byte, username string, ttl time.Duration) (string, error) {
	claims := SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Auth checks every request against the configured users, the same way
// the single AuthorizedUser request guard this service's credential
// model is translated from does: an Authorization header (standard HTTP
// Basic, or a bearer session token issued by /api/auth/verify) or, for
// clients that can't set headers, a "user:password" ?auth= query
// parameter. Requests that fail every check get the same Unauthorized
// payload the rest of the service uses, so clients see one error shape
// throughout.
func Auth(users []config.User, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username, ok := bearerIdentity(r, jwtSecret); ok {
				serveAs(w, r, next, username)
				return
			}

			username, password, ok := credentialsFromRequest(r)
			if !ok || !checkCredentials(users, username, password) {
				writeUnauthorized(w)
				return
			}
			serveAs(w, r, next, username)
		})
	}
}

func serveAs(w http.ResponseWriter, r *http.Request, next http.Handler, username string) {
	ctx := context.WithValue(r.Context(), identityKey{}, username)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// bearerIdentity verifies a "Bearer <jwt>" Authorization header against
// jwtSecret, returning the embedded username on success.
func bearerIdentity(r *http.Request, jwtSecret []byte) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return "", false
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil || !token.Valid || claims.Username == "" {
		return "", false
	}
	return claims.Username, true
}

// credentialsFromRequest reads a username/password pair from standard
// HTTP Basic auth, falling back to a "user:password" ?auth= query
// parameter for clients that can't set request headers.
func credentialsFromRequest(r *http.Request) (username, password string, ok bool) {
	if username, password, ok = r.BasicAuth(); ok {
		return username, password, true
	}

	raw := r.URL.Query().Get("auth")
	if raw == "" {
		return "", "", false
	}
	username, password, ok = strings.Cut(raw, ":")
	return username, password, ok
}

func checkCredentials(users []config.User, username, password string) bool {
	for _, u := range users {
		if u.Username != username {
			continue
		}
		return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(domain.Unauthorized().Payload())
}

// requestIDKey holds the per-request correlation id in the request context.
type requestIDKey struct{}

// RequestID returns the correlation id RequestLog assigned to ctx's request.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}

// RequestLog wraps next with a per-request entry logged at Info level:
// method, path, status and a random request id, matching the field-chaining
// style every other component in this service logs through. The id lets a
// single request be traced across log lines even when handlers log
// separately from this wrapper.
func RequestLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := uuid.New().String()
			ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(ctx))
			log.WithField("request_id", reqID).
				WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", sw.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request handled")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
