package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neighbr/backend-go/internal/auth"
)

func newRegister(t *testing.T, filter web.FilterFunc) *web.ControllerRegister {
	t.Helper()
	r := web.NewControllerRegister()
	require.NoError(t, r.InsertFilter("/*", web.BeforeRouter, filter))
	r.Get("/api/v1/ping", func(ctx *beecontext.Context) {
		claims, ok := ClaimsFromContext(ctx)
		if ok {
			_ = ctx.Output.Body([]byte(claims.HOACode))
			return
		}
		_ = ctx.Output.Body([]byte("anonymous"))
	})
	return r
}

func TestAuthRequired_MissingToken(t *testing.T) {
	jwtService, err := auth.NewJWTService("secret", "neighbr", time.Hour)
	require.NoError(t, err)
	r := newRegister(t, NewSecurityMiddleware(jwtService, nil).AuthRequired())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestAuthRequired_InvalidToken(t *testing.T) {
	jwtService, err := auth.NewJWTService("secret", "neighbr", time.Hour)
	require.NoError(t, err)
	r := newRegister(t, NewSecurityMiddleware(jwtService, nil).AuthRequired())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired token")
}

func TestAuthRequired_ValidToken(t *testing.T) {
	jwtService, err := auth.NewJWTService("secret", "neighbr", time.Hour)
	require.NoError(t, err)
	token, err := jwtService.GenerateToken("u-1", "resident@example.com", "HOA123", nil)
	require.NoError(t, err)
	r := newRegister(t, NewSecurityMiddleware(jwtService, nil).AuthRequired())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HOA123", rec.Body.String())
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := newRegister(t, CORSMiddleware([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	r := newRegister(t, CORSMiddleware([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	r := newRegister(t, CORSMiddleware([]string{"*"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Origin", "http://any.example")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "http://any.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "anonymous", rec.Body.String())
}
