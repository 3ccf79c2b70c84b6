package restful

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// loggerKey is the Gin context key the request logger is stored under.
const loggerKey = "restful-logger"

// MaxLogBodyBytes logs at most this many bytes of any request body during a
// panic when using the recovery middleware. Defaults to 10KiB.
var MaxLogBodyBytes int64 = 10 * 1024

var logConfig zap.Config

// LogLevel sets the built-in loggers' level when using the logging
// middleware. This can be changed dynamically at runtime.
var LogLevel *zap.AtomicLevel

// NewDefaultLogger returns a new low-level `*zap.Logger` instance. If the
// current terminal is a TTY, it will try to use colored output automatically.
func NewDefaultLogger() (*zap.Logger, error) {
	if LogLevel != nil {
		// Only set up the config once. The level will control all loggers.
		return logConfig.Build()
	}

	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		config := zap.NewDevelopmentConfig()
		LogLevel = &config.Level
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = iso8601UTCTimeEncoder
		logConfig = config
		return config.Build()
	}

	logConfig = zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = iso8601UTCTimeEncoder
	LogLevel = &logConfig.Level
	return logConfig.Build()
}

// NewLogger is a function that returns a new logger instance to use with
// the logger middleware.
var NewLogger func() (*zap.Logger, error) = NewDefaultLogger

// A UTC variation of zapcore.ISO8601TimeEncoder with millisecond precision.
func iso8601UTCTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// Logger creates a new middleware to set a tagged `*zap.SugaredLogger` in
// the Gin context, retrievable with GetLogger. It debug logs request info
// and error logs 5xx responses.
func Logger() gin.HandlerFunc {
	l, err := NewLogger()
	if err != nil {
		panic(err)
	}

	return func(c *gin.Context) {
		start := time.Now()

		contextLog := l.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.RequestURI()),
			zap.String("ip", c.ClientIP()),
		)
		c.Set(loggerKey, contextLog.Sugar())

		c.Next()

		contextLog = contextLog.With(
			// The route template isn't known until after routing ran.
			zap.String("template", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)

		if c.Writer.Status() < 500 {
			contextLog.Debug("Request")
		} else {
			contextLog.Error("Request")
		}
	}
}

// GetLogger returns the contextual logger for the current request. If no
// logger is present, it returns a no-op logger so no nil check is required.
func GetLogger(c *gin.Context) *zap.SugaredLogger {
	if log, ok := c.Get(loggerKey); ok {
		return log.(*zap.SugaredLogger)
	}

	return zap.NewNop().Sugar()
}

// H adapts an error-returning handler into a gin.HandlerFunc. A returned
// error is recorded on the context and aborts the rest of the chain; the
// error boundary decides what the client sees.
func H(fn func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c); err != nil {
			_ = c.Error(err)
			c.Abort()
		}
	}
}

// ErrorBoundary returns the middleware where the structured-error escape
// hatch lands. Structured errors recorded on the context (usually through H)
// and structured errors panicked from any depth both become their carried
// status plus a `{"msg": ...}` body here. Everything else passes through:
// other panics keep unwinding to the recovery middleware, and plain errors
// are left recorded for it. Recognition is by type, never by message.
func ErrorBoundary() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					if se, ok := AsStatusError(err); ok {
						c.Abort()
						if !c.Writer.Written() {
							RespondError(c, se.GetStatus(), se.Error())
						}
						return
					}
				}
				panic(r)
			}
		}()

		c.Next()

		if c.Writer.Written() {
			return
		}

		for _, ginErr := range c.Errors {
			if se, ok := AsStatusError(ginErr.Err); ok {
				RespondError(c, se.GetStatus(), se.Error())
				return
			}
		}
	}
}

// bufferedReadCloser reads and buffers up to max bytes into buf. Additional
// reads bypass the buffer. It lets the recovery middleware replay request
// bodies in panic logs without holding whole uploads in memory.
type bufferedReadCloser struct {
	reader io.ReadCloser
	buf    *bytes.Buffer
	max    int64
}

func (r *bufferedReadCloser) Read(p []byte) (n int, err error) {
	n, err = r.reader.Read(p)

	length := int64(r.buf.Len())
	if length < r.max {
		if length+int64(n) < r.max {
			r.buf.Write(p[:n])
		} else {
			r.buf.Write(p[:r.max-length])
		}
	}

	return
}

func (r *bufferedReadCloser) Close() error {
	return r.reader.Close()
}

// Recovery returns the outermost safety net: it recovers panics the error
// boundary did not claim, logs them with a dump of the request, and answers
// a plain 500. Handler errors that nothing translated get the same 500 so no
// request finishes without a response.
func Recovery() gin.HandlerFunc {
	bufPool := sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}

	return func(c *gin.Context) {
		var buf *bytes.Buffer

		// Buffer the body so it can be replayed in a panic log.
		if c.Request.Body != nil {
			buf = bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			defer bufPool.Put(buf)

			c.Request.Body = &bufferedReadCloser{
				reader: c.Request.Body,
				buf:    buf,
				max:    MaxLogBodyBytes,
			}
		}

		defer func() {
			if r := recover(); r != nil {
				// The body might have been read or partially read, so replace
				// it with what was captured.
				if buf != nil && buf.Len() != 0 {
					c.Request.Body = io.NopCloser(buf)
				} else if c.Request.Body != nil {
					defer c.Request.Body.Close()
					c.Request.Body = io.NopCloser(io.LimitReader(c.Request.Body, MaxLogBodyBytes))
				}
				request, _ := httputil.DumpRequest(c.Request, true)

				log := GetLogger(c)
				if err, ok := r.(error); ok {
					log = log.With(zap.Error(err))
				} else {
					log = log.With(zap.Any("error", r))
				}
				log.With(
					zap.String("request", string(request)),
					zap.String("template", c.FullPath()),
				).Error("Caught panic")

				c.Abort()
				if !c.Writer.Written() {
					RespondError(c, http.StatusInternalServerError, "internal server error")
				}
			}
		}()

		c.Next()

		if !c.Writer.Written() && len(c.Errors) > 0 {
			GetLogger(c).With(zap.Error(c.Errors.Last().Err)).Error("Unhandled request error")
			RespondError(c, http.StatusInternalServerError, "internal server error")
		}
	}
}
