package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-service/internal/config"
	"chat-service/internal/plugin/route/auth"
	"chat-service/internal/plugin/store/memory"
	"chat-service/internal/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) (*gin.Engine, *security.TokenResolver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.SessionSecret = "test-secret"
	cfg.SessionTTL = time.Hour
	cfg.BcryptCost = 4 // keep test hashing fast

	resolver := security.NewTokenResolver(&cfg)
	router := gin.New()
	auth.MountRoutes(router, memory.New(), resolver, cfg.BcryptCost)
	return router, resolver
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSignup(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/signup",
		`{"name":"Alice","email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string `json:"message"`
		User    struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "User created successfully", resp.Message)
	assert.Equal(t, "Alice", resp.User.Name)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.User.ID)
	// The password hash must never leak into the response.
	assert.NotContains(t, rec.Body.String(), "secret123")
	assert.NotContains(t, rec.Body.String(), "passwordHash")
}

func TestSignup_MissingFields(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/signup", `{"name":"Alice"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required fields")
}

func TestSignup_DuplicateEmail(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/signup",
		`{"name":"Alice","email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/auth/signup",
		`{"name":"Alice Again","email":"alice@example.com","password":"other456"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "User already exist")
}

func TestLogin(t *testing.T) {
	router, resolver := setupRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/signup",
		`{"name":"Alice","email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	// The issued token resolves back to a user ID.
	userID, err := resolver.Resolve(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, userID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doJSON(router, http.MethodPost, "/auth/signup",
		`{"name":"Alice","email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
