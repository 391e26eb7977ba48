package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"mustody-console/config"
	"mustody-console/core/backend"
	"mustody-console/core/notify"
	"mustody-console/core/push"
	"mustody-console/core/rbac"
	"mustody-console/core/scheduler"
	"mustody-console/core/session"
	"mustody-console/core/utils"

	"github.com/go-chi/chi/v5"
)

// LoginClient is the backend call behind POST /api/login.
type LoginClient interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResult, error)
}

type Deps struct {
	DB       *sql.DB
	Session  *session.Manager
	Auth     LoginClient
	Inbox    *notify.Manager
	Push     *push.Subscriber
	Displays *push.DisplayQueue
	Guard    *rbac.Guard
	Workers  []*scheduler.Job
}

type Server struct {
	cfg        *config.AppConfig
	router     chi.Router
	httpServer *http.Server
	logger     *utils.Logger

	db       *sql.DB
	session  *session.Manager
	auth     LoginClient
	inbox    *notify.Manager
	push     *push.Subscriber
	displays *push.DisplayQueue
	guard    *rbac.Guard
	workers  []*scheduler.Job
}

func NewServer(cfg *config.AppConfig, deps Deps, logger *utils.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if deps.Session == nil || deps.Inbox == nil {
		return nil, errors.New("session and inbox are required")
	}
	if deps.Displays == nil {
		deps.Displays = push.NewDisplayQueue(0)
	}
	if deps.Guard == nil {
		g, err := rbac.NewGuard(rbac.DefaultRoutes())
		if err != nil {
			return nil, err
		}
		deps.Guard = g
	}
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		logger:   logger,
		db:       deps.DB,
		session:  deps.Session,
		auth:     deps.Auth,
		inbox:    deps.Inbox,
		push:     deps.Push,
		displays: deps.Displays,
		guard:    deps.Guard,
		workers:  deps.Workers,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.cfg.API.Timeout + 10*time.Second,
	}
	if s.logger != nil {
		s.logger.Printf("console listening on %s", s.cfg.ListenAddr)
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
