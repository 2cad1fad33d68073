package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/internal/cache"
	"github.com/lumenpress/lumen/backend/go-services/internal/tokens"
	"github.com/lumenpress/lumen/backend/go-services/pkg/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "handlers-test-secret-32-bytes-xxxxxx"

func authRouter(t *testing.T) (*gin.Engine, *mr.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	revocations := cache.NewRevocations(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	r := gin.New()
	auth := middleware.AuthMiddleware(tokens.NewHMACVerifier(testSecret), revocations)
	NewAuthHandler(revocations).Register(r.Group("/api"), auth)
	return r, m
}

func call(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMeReturnsPrincipal(t *testing.T) {
	r, _ := authRouter(t)
	tok, err := tokens.GenerateAccessToken(testSecret, article.Principal{Subject: "u1", Email: "ada@example.com"}, time.Minute)
	require.NoError(t, err)

	w := call(r, http.MethodGet, "/api/auth/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, "u1", got["subject"])
	require.Equal(t, "ada@example.com", got["name"])

	require.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/auth/me", "").Code)
}

func TestRevokeBlocksToken(t *testing.T) {
	r, m := authRouter(t)
	tok, err := tokens.GenerateAccessToken(testSecret, article.Principal{Subject: "u1"}, time.Minute)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, call(r, http.MethodPost, "/api/auth/revoke", tok).Code)
	require.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/auth/me", tok).Code)

	// entries expire together with the token
	ttls := 0
	for _, k := range m.Keys() {
		require.LessOrEqual(t, m.TTL(k), time.Minute)
		ttls++
	}
	require.Equal(t, 1, ttls)
}

type failingRevoker struct{}

func (failingRevoker) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return context.DeadlineExceeded
}

func TestRevokeFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tok, err := tokens.GenerateAccessToken(testSecret, article.Principal{Subject: "u1"}, time.Minute)
	require.NoError(t, err)
	auth := middleware.AuthMiddleware(tokens.NewHMACVerifier(testSecret), nil)

	r := gin.New()
	NewAuthHandler(nil).Register(r.Group("/api"), auth)
	require.Equal(t, http.StatusServiceUnavailable, call(r, http.MethodPost, "/api/auth/revoke", tok).Code)

	r = gin.New()
	NewAuthHandler(failingRevoker{}).Register(r.Group("/api"), auth)
	require.Equal(t, http.StatusServiceUnavailable, call(r, http.MethodPost, "/api/auth/revoke", tok).Code)
}

func TestExpFromClaims(t *testing.T) {
	exp, err := expFromClaims(map[string]interface{}{"exp": float64(1700000000)})
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), exp.Unix())

	exp, err = expFromClaims(map[string]interface{}{"exp": json.Number("1700000001")})
	require.NoError(t, err)
	require.Equal(t, int64(1700000001), exp.Unix())

	_, err = expFromClaims(map[string]interface{}{})
	require.Error(t, err)
	_, err = expFromClaims(map[string]interface{}{"exp": "soon"})
	require.Error(t, err)
}
