// Package app wires every component of epv together: the Postgres-backed
// repositories, the IMAP ingester, the pipeline engine's dependencies,
// and the HTTP handlers that drive it all, following the same staged
// Init*/Start/Shutdown lifecycle this service's teacher codebase uses.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"contrib.go.opencensus.io/integrations/ocsql"
	_ "github.com/lib/pq"

	"github.com/harrowgate/epv/config"
	httpHandler "github.com/harrowgate/epv/internal/http"
	"github.com/harrowgate/epv/internal/http/middleware"
	"github.com/harrowgate/epv/internal/repository"
	"github.com/harrowgate/epv/internal/service/imap"
	"github.com/harrowgate/epv/internal/service/pipeline"
	"github.com/harrowgate/epv/internal/service/urlcache"
	"github.com/harrowgate/epv/pkg/logger"
)

// redirectCacheSize is N from spec.md §4.3: the URL redirect cache holds
// at most this many live entries before generation-based eviction kicks
// in.
const redirectCacheSize = 1000

// App owns every long-lived dependency the server needs: the database
// handle, the repositories built on top of it, the pipeline engine's
// shared Deps, the background IMAP ingester, and the HTTP server itself.
type App struct {
	config *config.Config
	logger logger.Logger

	db *sql.DB

	emails  *repository.EmailRepository
	macros  *repository.MacroRepository
	content *repository.ContentStore

	pipelineDeps *pipeline.Deps
	facade       *pipeline.Facade

	ingester *imap.Ingester

	mux    *http.ServeMux
	server *http.Server
}

// New constructs an App from a loaded config. Call Initialize before
// Start.
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
		logger: logger.New(cfg.LogLevel),
	}
}

// Initialize runs every setup step in dependency order: database,
// repositories, the pipeline engine's collaborators, the IMAP ingester,
// and finally the HTTP routes. macrosPath may be empty, in which case the
// macro catalog starts out empty.
func (a *App) Initialize(macrosPath string) error {
	if err := a.initDB(); err != nil {
		return err
	}
	a.initRepositories()
	if err := a.initMacros(macrosPath); err != nil {
		return err
	}
	a.initPipeline()
	a.initIngester()
	a.initHandlers()
	return nil
}

func (a *App) initDB() error {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		a.config.Database.Host, a.config.Database.Port, a.config.Database.User,
		a.config.Database.Password, a.config.Database.DBName, a.config.Database.SSLMode,
	)

	// If tracing is enabled, wrap the postgres driver so every query is
	// recorded as an OpenCensus span.
	driverName := "postgres"
	if a.config.Tracing.Enabled {
		var err error
		driverName, err = ocsql.Register(driverName, ocsql.WithAllTraceOptions())
		if err != nil {
			return fmt.Errorf("register opencensus sql driver: %w", err)
		}
		a.logger.Info("database driver wrapped with OpenCensus tracing")
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(a.config.Database.MaxConnections)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	a.db = db
	a.logger.WithField("host", a.config.Database.Host).
		WithField("dbname", a.config.Database.DBName).
		Info("connected to database")
	return nil
}

func (a *App) initRepositories() {
	a.emails = repository.NewEmailRepository(a.db)
	a.content = repository.NewContentStore(a.config.Storage.FileRoot)
}

func (a *App) initMacros(path string) error {
	if path == "" {
		a.macros = repository.NewMacroRepository(nil)
		return nil
	}
	macros, err := repository.LoadMacroRepository(path)
	if err != nil {
		return fmt.Errorf("load macros: %w", err)
	}
	a.macros = macros
	a.logger.WithField("count", len(macros.List())).Info("loaded macro catalog")
	return nil
}

func (a *App) initPipeline() {
	cache := urlcache.New[string, string](redirectCacheSize)
	a.pipelineDeps = &pipeline.Deps{
		Content:    a.content,
		Redirector: pipeline.NewRedirector(cache),
		Macros:     a.macros,
	}
	a.facade = pipeline.NewFacade(a.emails, a.pipelineDeps)
}

func (a *App) initIngester() {
	users := make([]imap.MailboxUser, len(a.config.Users))
	for i, u := range a.config.Users {
		users[i] = imap.MailboxUser{Username: u.Username, AddressPostfix: u.AddressPostfix}
	}

	a.ingester = imap.NewIngester(imap.Config{
		Auth: imap.AuthConfig{
			Host:     a.config.IMAP.Host,
			Port:     a.config.IMAP.Port,
			UseTLS:   a.config.IMAP.UseTLS,
			Username: a.config.IMAP.Username,
			Password: a.config.IMAP.Password,
		},
		Mailbox:      a.config.IMAP.Mailbox,
		ReadMailbox:  a.config.IMAP.ReadMailbox,
		PollInterval: a.config.IMAP.PollInterval,
		Users:        users,
	}, a.emails, a.content, a.logger)
}

func (a *App) initHandlers() {
	mux := http.NewServeMux()

	rateLimit := middleware.NewRateLimit(a.config.Ratelimit.Num, a.config.Ratelimit.Window)
	auth := middleware.Auth(a.config.Users, a.config.Security.JWTSecret)

	authHandler := httpHandler.NewAuthHandler(a.config.Security.JWTSecret, a.logger)
	emailHandler := httpHandler.NewEmailHandler(a.emails, a.content)
	pipelineHandler := httpHandler.NewPipelineHandler(a.facade)
	macroHandler := httpHandler.NewMacroHandler(a.macros)

	apiMux := http.NewServeMux()
	authHandler.RegisterRoutes(apiMux)
	emailHandler.RegisterRoutes(apiMux)
	pipelineHandler.RegisterRoutes(apiMux)
	macroHandler.RegisterRoutes(apiMux)

	mux.Handle("/api/", rateLimit.Middleware(auth(apiMux)))

	fileServer := http.FileServer(http.Dir(a.config.Storage.FrontendDir))
	mux.Handle("/", fileServer)

	a.mux = mux
}

// Start runs the IMAP ingester in the background and serves HTTP until
// ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	go a.ingester.Start(ctx)

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:    addr,
		Handler: middleware.RequestLog(a.logger)(a.mux),
	}

	a.logger.WithField("address", addr).Info("epv server starting")

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return a.Shutdown()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown stops the ingester and drains in-flight HTTP requests.
func (a *App) Shutdown() error {
	a.ingester.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}

	if a.db != nil {
		if a.config.Tracing.Enabled {
			if err := ocsql.RecordStats(a.db, 5*time.Second); err != nil {
				a.logger.WithField("error", err.Error()).Error("failed to record final database stats for tracing")
			}
		}
		return a.db.Close()
	}
	return nil
}
