package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citrusbyte/lemonade-core/internal/audit"
	"github.com/citrusbyte/lemonade-core/internal/auth"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/config"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/database"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/influxdb"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/logging"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/mqtt"
	"github.com/citrusbyte/lemonade-core/internal/stand"
)

// Deps carries everything the HTTP layer needs. MQTT and Influx are
// optional; nil disables the corresponding publishing.
type Deps struct {
	Config *config.Config
	Logger *logging.Logger
	DB     *database.DB

	Auth   *auth.Service
	Users  auth.UserRepository
	Roles  auth.RoleRepository
	Tokens auth.TokenRepository
	Stands stand.Repository
	Audit  audit.Repository

	MQTT   *mqtt.Client
	Influx *influxdb.Client

	Version string
}

// Server is the HTTP front end.
type Server struct {
	cfg         *config.Config
	log         *logging.Logger
	db          *database.DB
	auth        *auth.Service
	users       auth.UserRepository
	roles       auth.RoleRepository
	tokens      auth.TokenRepository
	stands      stand.Repository
	audit       audit.Repository
	mqtt        *mqtt.Client
	influx      *influxdb.Client
	version     string
	corsOrigins []string

	hub     *Hub
	tickets *ticketStore
	httpSrv *http.Server
}

func New(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("api: config is required")
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.DB == nil:
		return nil, errors.New("api: database is required")
	case deps.Auth == nil:
		return nil, errors.New("api: auth service is required")
	case deps.Users == nil || deps.Roles == nil || deps.Tokens == nil:
		return nil, errors.New("api: auth repositories are required")
	case deps.Stands == nil:
		return nil, errors.New("api: stand repository is required")
	case deps.Audit == nil:
		return nil, errors.New("api: audit repository is required")
	}

	s := &Server{
		cfg:         deps.Config,
		log:         deps.Logger,
		db:          deps.DB,
		auth:        deps.Auth,
		users:       deps.Users,
		roles:       deps.Roles,
		tokens:      deps.Tokens,
		stands:      deps.Stands,
		audit:       deps.Audit,
		mqtt:        deps.MQTT,
		influx:      deps.Influx,
		version:     deps.Version,
		corsOrigins: deps.Config.API.CORS.AllowedOrigins,
		hub:         NewHub(deps.Logger),
		tickets:     newTicketStore(),
	}

	router := chi.NewRouter()
	s.routes(router)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.API.Host, deps.Config.API.Port),
		Handler:      router,
		ReadTimeout:  deps.Config.GetReadTimeout(),
		WriteTimeout: deps.Config.GetWriteTimeout(),
		IdleTimeout:  deps.Config.GetIdleTimeout(),
	}
	return s, nil
}

// Start runs the server until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.tickets.cleanLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetWriteTimeout())
	defer cancel()

	s.hub.CloseAll()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// recordAudit writes an audit entry without letting a failure reach the
// request path.
func (s *Server) recordAudit(ctx context.Context, entry *audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("audit record failed", "action", entry.Action, "error", err)
	}
}
