package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"helpr/internal/config"
	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
)

// Authenticator resolves a bearer access token to an actor.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Actor, error)
}

type actorCtxKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

func actorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(domain.Actor)
	return actor, ok
}

// HTTPAuth provides bearer-token auth and per-client rate limiting for HTTP
// endpoints.
type HTTPAuth struct {
	authn   Authenticator
	limiter *rateLimiter
	logger  zerolog.Logger
}

func NewHTTPAuth(authn Authenticator, cfg config.APIRateLimitConfig, logger *zerolog.Logger) *HTTPAuth {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http_auth").Logger()
	}
	return &HTTPAuth{authn: authn, limiter: newRateLimiter(cfg), logger: base}
}

// Limit rejects clients that exceed their request budget, keyed by address.
func (a *HTTPAuth) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Require authenticates the bearer token and stores the actor in the request
// context.
func (a *HTTPAuth) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := a.authn.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrForbidden) {
				writeError(w, http.StatusForbidden, err.Error())
				return
			}
			if domain.IsClientError(err) || isAuthError(err) {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			writeDomainError(w, r, &a.logger, err)
			return
		}
		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

// RequireAdmin is Require plus an admin role check.
func (a *HTTPAuth) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.Require(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFrom(r.Context())
		if actor.Role != models.RoleAdmin {
			a.logger.Warn().
				Int64("user_id", actor.ID).
				Str("role", string(actor.Role)).
				Str("path", r.URL.Path).
				Str("request_id", requestIDFrom(r.Context())).
				Msg("admin route denied")
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func provenance(r *http.Request) models.Provenance {
	return models.Provenance{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
}
