package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/moff-wallet/pkg/log"
	"moff.io/moff-wallet/pkg/log/meta"
)

func newRouter(t *testing.T) (*gin.Engine, *bytes.Buffer) {
	t.Helper()
	t.Setenv("DEBUG", "1")
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	router := gin.New()
	router.Use(RecoveredHTTPLog(), TimeoutHTTP(50*time.Millisecond))
	return router, &buf
}

func TestRecoveredHTTPLogRecordsAction(t *testing.T) {
	router, buf := newRouter(t)
	router.POST("/wallet/pair", func(ctx *gin.Context) {
		meta.WithValue(ctx.Request.Context(), ActionKey{}, "pair")
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "malformed pairing uri"})
	})

	req := httptest.NewRequest(http.MethodPost, "/wallet/pair", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "pair")
	assert.Contains(t, out, "malformed pairing uri")
	assert.NotContains(t, out, "secret")
}

func TestRecoveredHTTPLogRecoversPanic(t *testing.T) {
	router, _ := newRouter(t)
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server internal error")
}

func TestTimeoutHTTPSetsDeadline(t *testing.T) {
	router, _ := newRouter(t)
	router.GET("/slow", func(ctx *gin.Context) {
		_, ok := ctx.Request.Context().Deadline()
		require.True(t, ok)
		<-ctx.Request.Context().Done()
		assert.ErrorIs(t, ctx.Request.Context().Err(), context.DeadlineExceeded)
		ctx.Status(http.StatusGatewayTimeout)
		ctx.Writer.WriteHeaderNow()
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
