package restful

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App ties a gin engine, logging, and command line plus environment
// configuration together so a resource service runs with a single call:
//
//	app := restful.NewApp("Notes API", "1.0.0")
//	app.Resource("/notes", store)
//	app.Run()
//
// Every flag registered through `Flag` can also be set via a `SERVICE_*`
// environment variable, so `--port 8080` and `SERVICE_PORT=8080` are
// equivalent. The built-in flags are `--host`, `--port`, `--debug`, and
// `--grace-period`.
type App struct {
	root     *cobra.Command
	engine   *gin.Engine
	server   *http.Server
	prestart []func()
}

// NewApp creates an application with the standard middleware chain
// (request logging, panic recovery, and the error boundary) already
// attached.
func NewApp(name, version string) *App {
	viper.SetEnvPrefix("SERVICE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	engine := gin.New()
	engine.Use(Logger(), Recovery(), ErrorBoundary())

	app := &App{engine: engine}

	app.root = &cobra.Command{
		Use:     filepath.Base(os.Args[0]),
		Short:   name,
		Version: version,
		Run: func(cmd *cobra.Command, args []string) {
			app.Start()
		},
	}

	app.Flag("host", "", "Hostname to listen on", "0.0.0.0")
	app.Flag("port", "p", "Port to listen on", 8000)
	app.Flag("debug", "d", "Enable debug logs", false)
	app.Flag("grace-period", "", "Seconds to wait for graceful shutdown", 10)

	return app
}

// Flag makes a new global flag on the root command, bound to a viper key
// of the same name and overridable through the environment.
func (a *App) Flag(name, short, description string, defaultValue any) {
	viper.SetDefault(name, defaultValue)

	flags := a.Flags()
	switch v := defaultValue.(type) {
	case bool:
		flags.BoolP(name, short, viper.GetBool(name), description)
	case int, int16, int32, int64, uint16, uint32, uint64:
		flags.IntP(name, short, viper.GetInt(name), description)
	case float32, float64:
		flags.Float64P(name, short, viper.GetFloat64(name), description)
	default:
		flags.StringP(name, short, fmt.Sprintf("%v", v), description)
	}
	viper.BindPFlag(name, flags.Lookup(name))
}

// PreStart registers a callback that runs after flags are parsed but
// before the server starts listening. Use it to connect stores or seed
// data from configuration.
func (a *App) PreStart(f func()) {
	a.prestart = append(a.prestart, f)
}

// Resource builds a resource for the model, mounts it on the app's
// engine, and returns it.
func (a *App) Resource(path string, model Model, options ...Option) *Resource {
	res := NewResource(path, model, options...)
	res.Mount(a.engine)
	return res
}

// Root returns the root cobra command so custom commands and flags can
// be added.
func (a *App) Root() *cobra.Command {
	return a.root
}

// Flags returns the global flag set, shared by every command.
func (a *App) Flags() *pflag.FlagSet {
	return a.root.PersistentFlags()
}

// Engine returns the underlying gin engine.
func (a *App) Engine() *gin.Engine {
	return a.engine
}

// Use attaches middleware to the engine.
func (a *App) Use(middleware ...gin.HandlerFunc) {
	a.engine.Use(middleware...)
}

// ServeHTTP conforms to the `http.Handler` interface.
func (a *App) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	a.engine.ServeHTTP(w, req)
}

// Start runs the HTTP server until it exits or the process receives an
// interrupt, then drains in-flight requests before returning. Run calls
// this for you; call it directly to skip command line parsing.
func (a *App) Start() {
	if viper.GetBool("debug") && LogLevel != nil {
		LogLevel.SetLevel(zapcore.DebugLevel)
	}

	for _, f := range a.prestart {
		f()
	}

	logger, err := NewLogger()
	if err != nil {
		panic(err)
	}

	addr := fmt.Sprintf("%s:%v", viper.Get("host"), viper.Get("port"))
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{}, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
		done <- struct{}{}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-done:
	case <-quit:
		logger.Info("Gracefully shutting down the server")
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(viper.GetInt("grace-period"))*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}
}

// Shutdown stops a started server, draining in-flight requests first.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Run parses command line arguments and runs the selected command. The
// default command starts the server.
func (a *App) Run() {
	if err := a.root.Execute(); err != nil {
		os.Exit(1)
	}
}
