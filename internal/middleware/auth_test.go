package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"requisition-backend/internal/auth"
	"requisition-backend/internal/config"
	"requisition-backend/internal/logger"
	"requisition-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Set(zap.NewNop())
	os.Exit(m.Run())
}

type staticPerms map[string][]string

func (s staticPerms) GetPermissionsByRoleName(_ context.Context, role string) ([]string, error) {
	if role == "broken" {
		return nil, errors.New("db down")
	}
	return s[role], nil
}

func newTestAuth() (*Auth, *auth.TokenManager) {
	tokens := auth.NewTokenManager(config.JWTConfig{Secret: "test-secret", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	perms := staticPerms{
		"DSE":         {"requests.read", "requests.review.dse"},
		"PADIRI":      {"requests.read", "requests.review.padiri"},
		"STOREKEEPER": {"stock.read"},
	}
	return NewAuth(tokens, perms, false), tokens
}

func newRouter(a *Auth, mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/guarded", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c).String(), "role": UserRole(c)})
	})
	return r
}

func bearer(t *testing.T, tokens *auth.TokenManager, role string) (string, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	tok, _, err := tokens.IssueAccess(id, role)
	require.NoError(t, err)
	return tok, id
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, response.Response) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRequireAuth(t *testing.T) {
	a, tokens := newTestAuth()
	r := newRouter(a, a.RequireAuth())
	token, id := bearer(t, tokens, "DSE")

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w, _ := do(r, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), id.String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token})
		w, _ := do(r, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w, body := do(r, httptest.NewRequest(http.MethodGet, "/guarded", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", body.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("Authorization", "Token "+token)
		w, _ := do(r, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		other := auth.NewTokenManager(config.JWTConfig{Secret: "other", AccessTTL: time.Minute, RefreshTTL: time.Hour})
		forged, _ := bearer(t, other, "DSE")
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("Authorization", "Bearer "+forged)
		w, _ := do(r, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequirePermission(t *testing.T) {
	a, tokens := newTestAuth()
	r := newRouter(a, a.RequirePermission("requests.read", "requests.review.dse"))

	tests := []struct {
		role string
		want int
	}{
		{"DSE", http.StatusOK},
		{"PADIRI", http.StatusForbidden},
		{"STOREKEEPER", http.StatusForbidden},
		{"broken", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, _ := bearer(t, tokens, tt.role)
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w, body := do(r, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", body.Code)
			}
		})
	}
}

func TestRequireAnyPermission(t *testing.T) {
	a, tokens := newTestAuth()
	r := newRouter(a, a.RequireAnyPermission("requests.review.dse", "requests.review.padiri"))

	for role, want := range map[string]int{
		"DSE":         http.StatusOK,
		"PADIRI":      http.StatusOK,
		"STOREKEEPER": http.StatusForbidden,
	} {
		token, _ := bearer(t, tokens, role)
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w, _ := do(r, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestCanRole(t *testing.T) {
	a, _ := newTestAuth()
	ok, err := a.CanRole("stock.read")(context.Background(), "STOREKEEPER")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CanRole("stock.read")(context.Background(), "DSE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenCookies(t *testing.T) {
	a, _ := newTestAuth()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", nil)

	a.SetTokenCookies(c, "acc", "ref")
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, AccessTokenCookie, cookies[0].Name)
	assert.Equal(t, "acc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 60, cookies[0].MaxAge)
	assert.Equal(t, RefreshTokenCookie, cookies[1].Name)
	assert.Equal(t, 3600, cookies[1].MaxAge)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRecoveryRendersEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w, body := do(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", body.Status)
}
