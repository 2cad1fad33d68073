package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumen/backend/go-services/internal/article"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
	"github.com/lumenpress/lumen/backend/go-services/pkg/middleware"
)

// Revoker records a token as revoked until ttl elapses.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// AuthHandler serves the caller's identity and token revocation.
type AuthHandler struct {
	revoker Revoker
}

// NewAuthHandler accepts a nil revoker; /auth/revoke then answers 503.
func NewAuthHandler(r Revoker) *AuthHandler {
	return &AuthHandler{revoker: r}
}

// Register routes under /auth; auth must run before every handler here.
func (h *AuthHandler) Register(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	a := rg.Group("/auth", auth)
	a.GET("/me", h.Me)
	a.POST("/revoke", h.Revoke)
}

// Me returns the principal derived from the verified token.
func (h *AuthHandler) Me(c *gin.Context) {
	p := article.PrincipalFromClaims(middleware.Claims(c))
	c.JSON(http.StatusOK, gin.H{"subject": p.Subject, "name": p.DisplayName(), "email": p.Email})
}

// Revoke blocks the presented token for the rest of its lifetime.
func (h *AuthHandler) Revoke(c *gin.Context) {
	if h.revoker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token revocation is not configured"})
		return
	}
	token := c.GetString(middleware.TokenKey)
	exp, err := expFromClaims(middleware.Claims(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		c.JSON(http.StatusOK, gin.H{"message": "token already expired"})
		return
	}
	if err := h.revoker.Revoke(c.Request.Context(), token, ttl); err != nil {
		logger.Errorf("revoke token: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}

// expFromClaims reads the exp claim of already verified claims.
func expFromClaims(claims map[string]interface{}) (time.Time, error) {
	v, ok := claims["exp"]
	if !ok {
		return time.Time{}, fmt.Errorf("exp claim not present")
	}
	switch vv := v.(type) {
	case float64:
		return time.Unix(int64(vv), 0), nil
	case int64:
		return time.Unix(vv, 0), nil
	case json.Number:
		f, err := vv.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(int64(f), 0), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported exp type %T", v)
	}
}
