package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ssq-labs/commentpilot/internal/pkg/meta"
)

func okApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handlers = append(handlers, func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Post("/", handlers...)
	app.Get("/", handlers...)
	return app
}

func TestMetaSignature(t *testing.T) {
	app := okApp(MetaSignature("app-secret"))
	body := `{"object":"instagram"}`

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", meta.Sign([]byte(body), "app-secret"), http.StatusOK},
		{"wrong secret", meta.Sign([]byte(body), "other"), http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
		{"not hex", "sha256=zz", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			if tt.header != "" {
				req.Header.Set(meta.SignatureHeader, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestMetaSignature_NoSecretSkipsCheck(t *testing.T) {
	app := okApp(MetaSignature(""))
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSourceLimiter(t *testing.T) {
	l := NewSourceLimiter(5)
	assert.True(t, l.Allow("a"), "burst of at least one")
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "sources have separate buckets")

	l = NewSourceLimiter(600)
	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("c"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("c"))
}

func TestRateLimitBySource(t *testing.T) {
	app := okApp(RateLimitBySource(10))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	app = okApp(RateLimitBySource(0))
	for i := 0; i < 5; i++ {
		resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestAdminAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	app := okApp(AdminAPIKey(string(hash)))

	tests := []struct {
		name   string
		header string
		value  string
		status int
	}{
		{"x-api-key", "X-API-Key", "s3cret", http.StatusOK},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := okApp(AdminAPIKey("")).Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
