package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litlink/internal/user"
)

type fakeValidator struct {
	identity *user.Identity
	token    string
}

func (v *fakeValidator) ValidateToken(_ context.Context, token string) (*user.Identity, error) {
	if v.identity == nil || token != v.token {
		return nil, errors.New("invalid credential")
	}
	return v.identity, nil
}

func echoIdentity(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		w.Write([]byte(identity.Username))
	})
}

func TestHandleAcceptsQueryToken(t *testing.T) {
	am := NewAuthMiddleware(&fakeValidator{
		identity: &user.Identity{ID: uuid.New(), Username: "alice"},
		token:    "good",
	})

	r := httptest.NewRequest("GET", "/api/conversations?token=good", nil)
	w := httptest.NewRecorder()
	am.Handle(echoIdentity(t)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestHandleQueryTokenTakesPriority(t *testing.T) {
	am := NewAuthMiddleware(&fakeValidator{
		identity: &user.Identity{ID: uuid.New(), Username: "alice"},
		token:    "from-query",
	})

	r := httptest.NewRequest("GET", "/api/conversations?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	w := httptest.NewRecorder()
	am.Handle(echoIdentity(t)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleAcceptsBearerHeader(t *testing.T) {
	am := NewAuthMiddleware(&fakeValidator{
		identity: &user.Identity{ID: uuid.New(), Username: "alice"},
		token:    "good",
	})

	r := httptest.NewRequest("GET", "/api/conversations", nil)
	r.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	am.Handle(echoIdentity(t)).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRejectsMissingAndInvalidTokens(t *testing.T) {
	am := NewAuthMiddleware(&fakeValidator{})
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler must not run")
	})

	r := httptest.NewRequest("GET", "/api/conversations", nil)
	w := httptest.NewRecorder()
	am.Handle(next).ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest("GET", "/api/conversations", nil)
	r.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	am.Handle(next).ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	adminCtx := context.WithValue(context.Background(), identityKey,
		&user.Identity{ID: uuid.New(), Username: "root", IsAdmin: true})
	r := httptest.NewRequest("GET", "/api/admin/reports", nil).WithContext(adminCtx)
	w := httptest.NewRecorder()
	RequireAdmin(ok).ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)

	userCtx := context.WithValue(context.Background(), identityKey,
		&user.Identity{ID: uuid.New(), Username: "alice"})
	r = httptest.NewRequest("GET", "/api/admin/reports", nil).WithContext(userCtx)
	w = httptest.NewRecorder()
	RequireAdmin(ok).ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = httptest.NewRequest("GET", "/api/admin/reports", nil)
	w = httptest.NewRecorder()
	RequireAdmin(ok).ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
