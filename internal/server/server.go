package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/handler"
	"github.com/xela07ax/approvalflow/internal/infra"
	"github.com/xela07ax/approvalflow/internal/infra/auth"
)

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	registry *prometheus.Registry

	// Обработчики входящих событий Slack
	commandHandler     *handler.CommandHandler     // /commands/approval
	interactionHandler *handler.InteractionHandler // /interactions
}

// NewServer инициализирует HTTP-поверхность сервиса со всеми зависимостями
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
	commandH *handler.CommandHandler,
	interactionH *handler.InteractionHandler,
) *Server {
	s := &Server{
		router:             chi.NewRouter(),
		logger:             logger.Named("http-server"),
		cfg:                cfg,
		registry:           registry,
		commandHandler:     commandH,
		interactionHandler: interactionH,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Healthcheck для мониторинга: всегда 200 OK, не зависит от хранилища
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		if s.registry != nil {
			r.Method(http.MethodGet, "/metrics",
				promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ВЕБХУКИ SLACK (подпись v0, если задан signing secret) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.cfg.Slack.SigningSecret, s.logger))

		r.Post("/commands/approval", s.commandHandler.HandleApproval)
		r.Post("/interactions", s.interactionHandler.Handle)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
