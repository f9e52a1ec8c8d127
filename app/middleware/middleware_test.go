package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(apiKey string) *gin.Engine {
	engine := gin.New()
	engine.Use(Recovery(), Logger(), AuthMiddleware(apiKey))
	engine.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	engine.POST("/echo", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.JSON(http.StatusOK, body)
	})
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })
	return engine
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	engine := newEngine("secret")

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, serve(engine, req).Code)
}

func TestAuthMiddleware_DisabledWithoutKey(t *testing.T) {
	w := serve(newEngine(""), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_KeepsBodyAndSetsRequestID(t *testing.T) {
	engine := newEngine("")

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{ "prompt" : "fix" }`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(engine, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"prompt":"fix"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "trace-1")
	assert.Equal(t, "trace-1", serve(engine, req).Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	w := serve(newEngine(""), httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestCompressBody(t *testing.T) {
	assert.Equal(t, "", CompressBody(""))
	assert.Equal(t, `{"a":1}`, CompressBody("{ \"a\" : 1 }"))

	long := `{"p":"` + strings.Repeat("x", 2000) + `"}`
	out := CompressBody(long)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Len(t, out, maxLoggedBody+3)
}
