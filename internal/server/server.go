// Package server orchestrates all components: NATS client, DB, client cache, dispatcher, HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/morezero/api-dispatcher/internal/config"
	"github.com/morezero/api-dispatcher/internal/handlers"
	"github.com/morezero/api-dispatcher/pkg/auditlog"
	"github.com/morezero/api-dispatcher/pkg/client"
	"github.com/morezero/api-dispatcher/pkg/commsutil"
	"github.com/morezero/api-dispatcher/pkg/db"
	"github.com/morezero/api-dispatcher/pkg/dispatcher"
	"github.com/morezero/api-dispatcher/pkg/events"
	"github.com/morezero/api-dispatcher/pkg/fetcher"
	"github.com/morezero/api-dispatcher/pkg/metrics"
	"github.com/morezero/api-dispatcher/pkg/settings"
)

const logPrefix = "server:server"

// pinger is the database health check. *pgxpool.Pool implements it.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server is the api-dispatcher orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	db         pinger
	fetcher    *fetcher.Fetcher
	disp       *dispatcher.Dispatcher
	metrics    *metrics.Collector
	httpServer *http.Server

	// inflight runs one goroutine per dispatch, bounded by MaxInflightDispatches.
	inflight errgroup.Group
}

// SetupLogging installs the default slog handler for the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// NewFetcher builds the fetcher for cfg with the built-in handlers registered.
func NewFetcher(cfg *config.Config, deps handlers.Deps) *fetcher.Fetcher {
	f := fetcher.New(cfg.FetcherConfig())
	if deps.ServiceName == "" {
		deps.ServiceName = cfg.COMMSName
	}
	handlers.Register(f, deps)
	return f
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting api-dispatcher", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load settings
	st, err := settings.Load(cfg.SettingsFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load settings: %w", logPrefix, err)
	}
	if st.Source != "" {
		slog.Info(fmt.Sprintf("%s - Settings loaded from %s", logPrefix, st.Source))
	}

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	defer nc.Close()
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Connect to database, if configured
	var repo *db.Repository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		defer pool.Close()
		s.db = pool

		if cfg.RunMigrations {
			if err := migrate(ctx, pool, cfg.MigrationPath); err != nil {
				return err
			}
		}
		repo = db.NewRepository(pool)
	}

	// Step 4: Audit log sink
	sink, err := newAuditSink(cfg, nc, repo)
	if err != nil {
		return err
	}

	// Step 5: Active client resolution
	deps := handlers.Deps{ServiceName: cfg.COMMSName}
	var resolver dispatcher.ClientResolver
	if repo != nil {
		deps.Logs = repo
		deps.Clients = repo

		var store client.Store = client.NewPostgresStore(repo)
		if cfg.RedisAddr != "" {
			rdb := client.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
			defer rdb.Close()
			cached := client.NewCachedStore(rdb, store, &client.CachedStoreOpts{TTL: cfg.ClientCacheTTL})
			deps.ClientCache = cached
			store = cached
			slog.Info(fmt.Sprintf("%s - Client cache at %s", logPrefix, cfg.RedisAddr))
		}
		if len(st.ClientIdentifiers) > 0 {
			resolver = client.NewResolver(st.ClientIdentifiers, store)
			for _, id := range st.ClientIdentifiers {
				deps.ClientFields = append(deps.ClientFields, id.ClientField)
			}
		}
	} else if len(st.ClientIdentifiers) > 0 {
		slog.Warn(fmt.Sprintf("%s - Client identifiers configured without DATABASE_URL, active client lookup disabled", logPrefix))
	}

	// Step 6: Events
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.EventsEnabled {
		publisher = events.NewCommsPublisher(nc, nil)
	}

	// Step 7: Fetcher, metrics, dispatcher
	s.fetcher = NewFetcher(cfg, deps)
	s.metrics = metrics.NewCollector()
	p := dispatcher.Params{
		Fetcher: s.fetcher,
		Logs:    auditlog.NewLogger(sink),
		Events:  publisher,
		Metrics: s.metrics,
	}
	if resolver != nil {
		p.Clients = resolver
	}
	s.disp = dispatcher.New(p)

	sub, err := s.subscribe(ctx)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, cfg.DispatchSubject))

	// Step 8: Serve HTTP until a shutdown signal or a server failure
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))

		// Graceful shutdown
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", logPrefix, err))
		}
		_ = s.inflight.Wait()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
		defer shutdownCancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	slog.Info(fmt.Sprintf("%s - api-dispatcher is ready with %d routes", logPrefix, len(s.fetcher.Routes())))

	err = g.Wait()
	if drainErr := nc.Drain(); drainErr != nil {
		slog.Warn(fmt.Sprintf("%s - drain: %v", logPrefix, drainErr))
	}
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, path string) error {
	migrations, err := db.LoadMigrations(path)
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if _, err := db.MigrateUp(ctx, pool, migrations); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	return nil
}

// newAuditSink returns the sink selected by AUDIT_LOG_SINK.
func newAuditSink(cfg *config.Config, nc *comms.Conn, repo *db.Repository) (auditlog.Sink, error) {
	switch cfg.AuditLogSink {
	case config.AuditSinkComms:
		return auditlog.NewCommsSink(nc, &auditlog.CommsSinkOpts{SubjectPrefix: cfg.AuditLogSubjectPrefix}), nil
	case config.AuditSinkPostgres:
		if repo == nil {
			return nil, fmt.Errorf("%s - audit log sink %q requires DATABASE_URL", logPrefix, cfg.AuditLogSink)
		}
		return auditlog.NewPostgresSink(repo), nil
	case config.AuditSinkNone, "":
		return &auditlog.NoOpSink{}, nil
	}
	return nil, fmt.Errorf("%s - unknown audit log sink %q", logPrefix, cfg.AuditLogSink)
}

// subscribe feeds the dispatch subject into the dispatcher. Instances share a
// queue group so each request is handled once.
func (s *Server) subscribe(ctx context.Context) (*comms.Subscription, error) {
	s.inflight.SetLimit(s.cfg.MaxInflightDispatches)
	sub, err := s.nc.QueueSubscribe(s.cfg.DispatchSubject, s.cfg.COMMSName, s.handleDispatch(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, s.cfg.DispatchSubject, err)
	}
	return sub, nil
}

// handleDispatch hands every message to its own goroutine so a slow handler
// only holds up its own request. Once MaxInflightDispatches are running the
// callback blocks, leaving further messages queued in the subscription.
func (s *Server) handleDispatch(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		s.inflight.Go(func() error {
			s.dispatchMsg(ctx, msg)
			return nil
		})
	}
}

// dispatchMsg decodes a request descriptor, dispatches it and replies with the
// response and error, if any.
func (s *Server) dispatchMsg(ctx context.Context, msg *comms.Msg) {
	req, err := dispatcher.DecodeRequest(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		if err := commsutil.Reply(msg, dispatcher.NewReply(nil, err)); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to reply: %v", logPrefix, err))
		}
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp, err := s.disp.Dispatch(reqCtx, req)
	if err := commsutil.Reply(msg, dispatcher.NewReply(resp, err)); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to reply to %s: %v", logPrefix, req.Endpoint, err))
	}
}

// Router returns the HTTP handler for health, readiness, metrics and routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome())
	r.Get("/health", s.handleHealth)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ready"})
	})
	r.Get("/routes", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{"basePath": s.fetcher.BasePath(), "routes": s.fetcher.Routes()})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// HealthOutput is the /health response.
type HealthOutput struct {
	Status    string `json:"status"`
	Comms     string `json:"comms"`
	Database  string `json:"database"`
	Routes    int    `json:"routes"`
	Timestamp string `json:"timestamp"`
}

// Health checks the NATS connection and, when configured, the database.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:    "healthy",
		Comms:     "disconnected",
		Database:  "disabled",
		Routes:    len(s.fetcher.Routes()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.nc != nil && s.nc.IsConnected() {
		h.Comms = "connected"
	} else {
		h.Status = "unhealthy"
	}
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - database ping failed: %v", logPrefix, err))
			h.Database = "unreachable"
			h.Status = "unhealthy"
		} else {
			h.Database = "ok"
		}
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.Health(ctx)
	if h.Status != "healthy" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, h)
}

// homePageTemplate is the HTML for the home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Service}}</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
  </style>
</head>
<body>
  <h1>{{.Service}}</h1>
  <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span> (comms {{.Health.Comms}}, database {{.Health.Database}})</p>
  <p>Dispatch subject: <code>{{.Subject}}</code></p>
  <h2>Routes</h2>
  {{if not .Routes}}
  <p>No handlers registered.</p>
  {{else}}
  <table>
    <tr><th>Handler path</th></tr>
    {{range .Routes}}<tr><td><code>{{.}}</code></td></tr>
    {{end}}
  </table>
  {{end}}
  <p class="meta">Generated {{.Health.Timestamp}}</p>
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Service string
	Subject string
	Health  *HealthOutput
	Routes  []string
}

// handleHome returns an HTTP handler for the home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{
			Service: s.cfg.COMMSName,
			Subject: s.cfg.DispatchSubject,
			Health:  s.Health(ctx),
			Routes:  s.fetcher.Routes(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
