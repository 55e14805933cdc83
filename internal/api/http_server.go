package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"helpr/internal/audit"
	"helpr/internal/config"
	"helpr/internal/service"

	"github.com/rs/zerolog"
)

// Services bundles the application services the HTTP API calls into.
type Services struct {
	Auth     *service.AuthService
	Users    *service.UserService
	Bookings *service.BookingService
	Messages *service.MessageService
	Admin    *service.AdminService
	Catalog  *service.CatalogService
	Audit    *audit.Recorder
}

// HTTPServer exposes the REST API, the WebSocket endpoint and health checks.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	auth     *HTTPAuth
	realtime http.Handler
	ready    func(context.Context) error
	server   *http.Server
	logger   zerolog.Logger
}

// NewHTTPServer wires routes. realtime serves /ws and ready backs /readyz;
// either may be nil.
func NewHTTPServer(
	cfg config.APIConfig,
	svc Services,
	realtime http.Handler,
	ready func(context.Context) error,
	logger *zerolog.Logger,
) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = *logger
	}
	srv := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		auth:     NewHTTPAuth(svc.Auth, cfg.RateLimit, &base),
		realtime: realtime,
		ready:    ready,
		logger:   base.With().Str("component", "http_api").Logger(),
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(&base, srv.auth.Limit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	req, admin := s.auth.Require, s.auth.RequireAdmin

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.realtime != nil {
		mux.Handle("GET /ws", s.realtime)
	}

	mux.HandleFunc("POST /api/auth/request-otp", s.handleRequestOTP)
	mux.HandleFunc("POST /api/auth/verify-otp", s.handleVerifyOTP)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", req(s.handleLogout))

	mux.HandleFunc("GET /api/users/me", req(s.handleMe))
	mux.HandleFunc("PATCH /api/users/me", req(s.handleUpdateMe))
	mux.HandleFunc("GET /api/users/helpers", req(s.handleListHelpers))
	mux.HandleFunc("GET /api/users/helpers/{id}", req(s.handleGetHelper))

	mux.HandleFunc("GET /api/services", s.handleListServices)
	mux.HandleFunc("GET /api/services/{id}", s.handleGetService)

	mux.HandleFunc("POST /api/bookings", req(s.handleCreateBooking))
	mux.HandleFunc("GET /api/bookings", req(s.handleListMyBookings))
	mux.HandleFunc("GET /api/bookings/available", req(s.handleListAvailable))
	mux.HandleFunc("GET /api/bookings/{id}", req(s.handleGetBooking))
	mux.HandleFunc("PATCH /api/bookings/{id}/accept", req(s.bookingAction(s.svc.Bookings.Accept)))
	mux.HandleFunc("PATCH /api/bookings/{id}/start", req(s.bookingAction(s.svc.Bookings.Start)))
	mux.HandleFunc("PATCH /api/bookings/{id}/complete", req(s.bookingAction(s.svc.Bookings.Complete)))
	mux.HandleFunc("PATCH /api/bookings/{id}/close", req(s.bookingAction(s.svc.Bookings.Close)))
	mux.HandleFunc("POST /api/bookings/{id}/rate", req(s.handleRateBooking))

	mux.HandleFunc("GET /api/messages/{bookingId}", req(s.handleMessageHistory))
	mux.HandleFunc("POST /api/messages/{bookingId}", req(s.handleSendMessage))
	mux.HandleFunc("PATCH /api/messages/{bookingId}/read", req(s.handleMarkRead))
	mux.HandleFunc("GET /api/messages/{bookingId}/unread-count", req(s.handleUnreadCount))

	mux.HandleFunc("GET /api/admin/users", admin(s.handleAdminListUsers))
	mux.HandleFunc("GET /api/admin/users/{id}", admin(s.handleAdminGetUser))
	mux.HandleFunc("PATCH /api/admin/users/{id}/deactivate", admin(s.userModeration(s.svc.Admin.Deactivate)))
	mux.HandleFunc("PATCH /api/admin/users/{id}/activate", admin(s.userModeration(s.svc.Admin.Activate)))
	mux.HandleFunc("GET /api/admin/helpers/pending", admin(s.handlePendingHelpers))
	mux.HandleFunc("PATCH /api/admin/helpers/{id}/verify", admin(s.userModeration(s.svc.Admin.VerifyHelper)))
	mux.HandleFunc("PATCH /api/admin/helpers/{id}/unverify", admin(s.userModeration(s.svc.Admin.UnverifyHelper)))
	mux.HandleFunc("GET /api/admin/bookings", admin(s.handleAdminListBookings))
	mux.HandleFunc("PATCH /api/admin/bookings/{id}/cancel", admin(s.adminBookingAction(s.svc.Bookings.AdminCancel)))
	mux.HandleFunc("PATCH /api/admin/bookings/{id}/dispute", admin(s.adminBookingAction(s.svc.Bookings.AdminDispute)))
	mux.HandleFunc("PATCH /api/admin/bookings/{id}/force-close", admin(s.adminBookingAction(s.svc.Bookings.AdminForceClose)))
	mux.HandleFunc("POST /api/admin/services", admin(s.handleCreateService))
	mux.HandleFunc("PATCH /api/admin/services/{id}", admin(s.handleUpdateService))
	mux.HandleFunc("GET /api/admin/audit-log", admin(s.handleAuditLog))
	mux.HandleFunc("GET /api/admin/audit-log/export", admin(s.handleAuditExport))
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeDomainError(w, r, &s.logger, err)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeData(w, http.StatusOK, map[string]string{"status": "ready"})
}
