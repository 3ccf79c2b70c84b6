package restful

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestApp(t *testing.T) *App {
	old := NewLogger
	NewLogger = func() (*zap.Logger, error) {
		return zaptest.NewLogger(t), nil
	}
	t.Cleanup(func() { NewLogger = old })

	gin.SetMode(gin.TestMode)
	return NewApp("Test Service", "1.0.0")
}

func TestAppResource(t *testing.T) {
	app := newTestApp(t)

	entity := &fakeEntity{values: map[string]any{"id": "1", "name": "hello"}}
	model := &fakeModel{
		findOne: func(where map[string]any) (Entity, error) {
			if where["id"] == "1" {
				return entity, nil
			}
			return nil, nil
		},
	}

	res := app.Resource("/notes", model)
	single, plural := res.Name()
	assert.Equal(t, "note", single)
	assert.Equal(t, "notes", plural)

	req := httptest.NewRequest(http.MethodGet, "/notes/1", nil)
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": "1", "name": "hello"}`, w.Body.String())

	// Missing resources come back through the error boundary.
	req = httptest.NewRequest(http.MethodGet, "/notes/2", nil)
	w = httptest.NewRecorder()
	app.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"msg": "resource not found"}`, w.Body.String())
}

func TestAppFlag(t *testing.T) {
	app := newTestApp(t)

	app.Flag("rate-limit", "", "Requests per second", 5)
	assert.Equal(t, 5, viper.GetInt("rate-limit"))
	assert.NotNil(t, app.Flags().Lookup("rate-limit"))

	t.Setenv("SERVICE_RATE_LIMIT", "9")
	assert.Equal(t, 9, viper.GetInt("rate-limit"))
}

func TestAppDefaultFlags(t *testing.T) {
	app := newTestApp(t)
	flags := app.Flags()

	for _, name := range []string{"host", "port", "debug", "grace-period"} {
		assert.NotNil(t, flags.Lookup(name), name)
	}
	assert.Equal(t, "0.0.0.0", viper.GetString("host"))
	assert.Equal(t, 8000, viper.GetInt("port"))
}

func TestAppHelp(t *testing.T) {
	app := newTestApp(t)

	buf := bytes.NewBuffer(nil)
	app.Root().SetOut(buf)
	app.Root().SetErr(buf)
	app.Root().SetArgs([]string{"--help"})
	app.Run()

	for _, flag := range []string{"--host", "--port", "--debug", "--grace-period"} {
		assert.Contains(t, buf.String(), flag)
	}
}

func TestAppStartShutdown(t *testing.T) {
	app := newTestApp(t)

	viper.Set("host", "127.0.0.1")
	viper.Set("port", 0)
	t.Cleanup(func() {
		viper.Set("host", "0.0.0.0")
		viper.Set("port", 8000)
	})

	started := false
	app.PreStart(func() {
		started = true
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGINT)
	}()

	app.Start()
	assert.True(t, started)
}
