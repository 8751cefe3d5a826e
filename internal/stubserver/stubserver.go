// Package stubserver implements the remote auth service's contract for
// development and tests: login, refresh and who-am-I over JSON, with HS256
// tokens carrying real expiries, plus a fault-injection hook for driving
// retry and recovery paths.
package stubserver

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

//go:embed openapi.yaml
var openapiSpec []byte

const defaultTokenTTL = 72 * time.Hour

// Server is an in-process auth service double.
type Server struct {
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	users map[string]string // username -> password

	// one-shot injected failure for the next request
	failStatus int
	retryAfter string
}

// Option configures the stub server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of minted tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = ttl
	}
}

// WithUser registers an account.
func WithUser(username, password string) Option {
	return func(s *Server) {
		s.users[username] = password
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a stub server with a random signing secret.
func New(opts ...Option) *Server {
	s := &Server{
		secret:   []byte(uuid.NewString()),
		tokenTTL: defaultTokenTTL,
		users:    map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s
}

// FailNext makes the next request fail with the given status. retryAfter,
// when non-empty, is sent as a Retry-After header.
func (s *Server) FailNext(status int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
	s.retryAfter = retryAfter
}

// Router returns the chi router with all endpoints mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.injectFailure)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "/docs",
	}, nil))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/whoami", s.handleWhoAmI)
	})
	return r
}

func (s *Server) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status, ra := s.failStatus, s.retryAfter
		s.failStatus, s.retryAfter = 0, ""
		s.mu.Unlock()

		if status != 0 {
			if ra != "" {
				w.Header().Set("Retry-After", ra)
			}
			w.WriteHeader(status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	want, ok := s.users[creds.Username]
	s.mu.Unlock()
	if !ok || want != creds.Password {
		s.logger.Warn("login rejected", slog.String("username", creds.Username))
		writeError(w, http.StatusUnauthorized, "bad credentials")
		return
	}

	tok, err := s.mint(creds.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "minting token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": tok,
		"profile": map[string]string{
			"id":           creds.Username,
			"username":     creds.Username,
			"display_name": strings.ToUpper(creds.Username[:1]) + creds.Username[1:],
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.verify(bearer(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	tok, err := s.mint(sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "minting token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.verify(bearer(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": sub, "username": sub})
}

func (s *Server) mint(username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) verify(raw string) (subject string, ok bool) {
	if raw == "" {
		return "", false
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", false
	}
	return claims.Subject, true
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
