package restful

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// newObservedRouter wires the full default chain with an observer-backed
// logger so tests can assert on emitted logs.
func newObservedRouter(t testing.TB) (*gin.Engine, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	restore := NewLogger
	NewLogger = func() (*zap.Logger, error) {
		l := zaptest.NewLogger(t, zaptest.WrapOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })))
		return l, nil
	}
	t.Cleanup(func() { NewLogger = restore })

	r := newTestRouter()
	r.Use(Logger(), Recovery(), ErrorBoundary())
	return r, logs
}

func TestHRecordsAndAborts(t *testing.T) {
	r := newTestRouter()
	r.Use(ErrorBoundary())

	reached := false
	r.GET("/thing", H(func(c *gin.Context) error {
		return Error404NotFound("resource not found")
	}), func(c *gin.Context) {
		reached = true
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/thing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"msg": "resource not found"}`, w.Body.String())
	assert.False(t, reached)
}

func TestErrorBoundaryPanickedError(t *testing.T) {
	r := newTestRouter()
	r.Use(ErrorBoundary())

	r.POST("/things", H(func(c *gin.Context) error {
		// Deeply nested code escapes by panicking with a structured error.
		panic(Error409Conflict("resource already exists"))
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/things", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"msg": "resource already exists"}`, w.Body.String())
}

func TestErrorBoundaryLeavesPlainErrorsAlone(t *testing.T) {
	r := newTestRouter()
	r.Use(ErrorBoundary())

	r.GET("/thing", H(func(c *gin.Context) error {
		return errors.New("database exploded")
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/thing", nil)
	r.ServeHTTP(w, req)

	// Not the boundary's: no structured response was produced.
	assert.Empty(t, w.Body.String())
}

func TestErrorBoundaryMessageSpoofing(t *testing.T) {
	r, _ := newObservedRouter(t)

	// A plain error whose text matches a canned message must not be treated
	// as a structured error.
	r.GET("/thing", H(func(c *gin.Context) error {
		return errors.New("resource not found")
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/thing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"msg": "internal server error"}`, w.Body.String())
}

func TestRecoveryUnhandledError(t *testing.T) {
	r, logs := newObservedRouter(t)

	r.GET("/thing", H(func(c *gin.Context) error {
		return errors.New("database exploded")
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/thing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"msg": "internal server error"}`, w.Body.String())

	found := false
	for _, entry := range logs.All() {
		if entry.Message == "Unhandled request error" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecoveryPanic(t *testing.T) {
	r, logs := newObservedRouter(t)

	r.GET("/panic", func(c *gin.Context) {
		panic(fmt.Errorf("some error"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"msg": "internal server error"}`, w.Body.String())

	found := false
	for _, entry := range logs.All() {
		if entry.Message == "Caught panic" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRecoveryPanicString(t *testing.T) {
	r, _ := newObservedRouter(t)

	r.GET("/panic", func(c *gin.Context) {
		panic("some error")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecoveryLogBody(t *testing.T) {
	r, logs := newObservedRouter(t)

	r.PUT("/panic", func(c *gin.Context) {
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		panic(fmt.Errorf("some error"))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/panic", strings.NewReader(`{"foo": "bar"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	found := false
	for _, entry := range logs.All() {
		if entry.Message != "Caught panic" {
			continue
		}
		found = true
		assert.Contains(t, entry.ContextMap()["request"], `{"foo": "bar"}`)
	}
	assert.True(t, found)
}

func TestLoggerInContext(t *testing.T) {
	r, logs := newObservedRouter(t)

	r.GET("/thing", func(c *gin.Context) {
		GetLogger(c).Infow("handling", "id", 123)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/thing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	found := false
	for _, entry := range logs.All() {
		if entry.Message == "handling" {
			found = true
			assert.EqualValues(t, 123, entry.ContextMap()["id"])
		}
	}
	assert.True(t, found)
}

func TestGetLoggerWithoutMiddleware(t *testing.T) {
	r := newTestRouter()
	r.GET("/thing", func(c *gin.Context) {
		// Must not panic; a no-op logger comes back.
		GetLogger(c).Debug("quiet")
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/thing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNewDefaultLogger(t *testing.T) {
	l, err := NewDefaultLogger()
	assert.NoError(t, err)
	assert.NotNil(t, l)
}
