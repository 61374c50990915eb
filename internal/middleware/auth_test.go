package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/pkg/jwt"
	"github.com/stretchr/testify/require"
)

func setupAuthRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": CurrentUserID(c)})
	})
	return r
}

func TestAuthAcceptsHeaderAndQueryToken(t *testing.T) {
	jwt.SetSecret("middleware-test")
	token, err := jwt.Sign(5, time.Minute)
	require.NoError(t, err)

	r := setupAuthRouter(Auth())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"userId":5}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	r := setupAuthRouter(Auth())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuthLetsAnonymousThrough(t *testing.T) {
	r := setupAuthRouter(OptionalAuth())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"userId":0}`, w.Body.String())
}

func TestNormalizeToken(t *testing.T) {
	require.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	require.Equal(t, "abc", NormalizeToken("bearer abc"))
	require.Equal(t, "abc", NormalizeToken("abc"))
	require.Equal(t, "", NormalizeToken("   "))
}
