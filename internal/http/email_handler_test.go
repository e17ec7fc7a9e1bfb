package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/internal/http/middleware"
	"github.com/harrowgate/epv/internal/repository"
)

const testSecret = "test-secret-test-secret-32bytes"

func authedRequest(t *testing.T, method, path, user string) *http.Request {
	t.Helper()
	token, err := middleware.IssueToken([]byte(testSecret), user, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestEmailHandler_List_ScopesToCaller(t *testing.T) {
	repo := newFakeEmailRepo(
		&domain.EmailRecord{ID: "1", User: "alice", Subject: "Hi"},
		&domain.EmailRecord{ID: "2", User: "bob", Subject: "Nope"},
	)
	h := NewEmailHandler(repo, repository.NewContentStore(t.TempDir()))

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	handler := middleware.Auth(nil, []byte(testSecret))(mux)

	req := authedRequest(t, http.MethodGet, "/api/emails/list", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hi")
	assert.NotContains(t, rec.Body.String(), "Nope")
}

func TestEmailHandler_Html_ReturnsStoredBody(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alice"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice", "1.html"), []byte("<p>hi</p>"), 0o644))

	repo := newFakeEmailRepo(&domain.EmailRecord{ID: "1", User: "alice", HTMLPath: "alice/1.html"})
	h := NewEmailHandler(repo, repository.NewContentStore(root))

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	handler := middleware.Auth(nil, []byte(testSecret))(mux)

	req := authedRequest(t, http.MethodGet, "/api/emails/1/html", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>hi</p>", rec.Body.String())
}

func TestEmailHandler_Html_NotFoundForOtherUser(t *testing.T) {
	repo := newFakeEmailRepo(&domain.EmailRecord{ID: "1", User: "alice", HTMLPath: "alice/1.html"})
	h := NewEmailHandler(repo, repository.NewContentStore(t.TempDir()))

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	handler := middleware.Auth(nil, []byte(testSecret))(mux)

	req := authedRequest(t, http.MethodGet, "/api/emails/1/html", "mallory")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
