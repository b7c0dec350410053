package router

import (
	"context"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/course"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/embedding"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/join"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// Config holds the transport settings.
type Config struct {
	// RequestTimeout bounds every store call a request makes.
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
}

func ConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{RequestTimeout: 30 * time.Second}
	}
	return cfg
}

// Options carries the configuration RegisterRoutes needs beyond the store.
type Options struct {
	HTTP      Config
	Auth      auth.Config
	Join      join.Config
	Dimension int
	Extractor biometric.Extractor
	Metrics   *metrics.Metrics
	// Hasher overrides bcrypt; tests use a cheap one.
	Hasher user.PasswordHasher
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request at debug level and counts it.
func LoggingMiddleware(logger *zap.SugaredLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			m.Request(r.Method, status)
			logger.Debugw("http request",
				"request_id", w.Header().Get(requestIDHeader),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware echoes the caller's X-Request-ID or assigns a KSUID.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" || len(id) > 64 {
				id = utilities.NewKSUID()
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// TimeoutMiddleware gives each request context a deadline. Handlers pass
// r.Context() down to the store, so a blocked query or row lock fails once
// the deadline passes. Zero disables it.
func TimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			// HSTS only makes sense over TLS
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes builds the services on db and mounts them on a ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, db *sqlx.DB, opts Options) http.Handler {
	mux := http.NewServeMux()

	users := user.NewUserService(db, nil, opts.Hasher)
	tokens := auth.NewTokenService(db, opts.Auth)
	guard := auth.NewGuard(tokens, logger)
	courses := course.NewService(db, users)
	ledger := attendance.NewLedger(db)
	sessions := session.NewManager(db, courses, ledger, opts.Metrics, logger)
	store := embedding.NewStore(db, opts.Dimension)
	orch := join.NewOrchestrator(opts.Join, join.Deps{
		References:  store,
		Sessions:    sessions,
		Enrollments: courses,
		Ledger:      ledger,
		Directory:   users,
		Extractor:   opts.Extractor,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})

	userHandler := user.NewHandler(users, logger)
	authHandler := auth.NewHandler(tokens, users, logger)
	courseHandler := course.NewHandler(courses, logger)
	sessionHandler := session.NewHandler(sessions, logger)
	joinHandler := join.NewHandler(orch, logger)
	attendanceHandler := attendance.NewHandler(ledger, logger)

	admin := []entity.Role{entity.RoleAdmin}
	staff := []entity.Role{entity.RoleTeacher, entity.RoleAdmin}
	student := []entity.Role{entity.RoleStudent}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			logger.Warnw("health check failed", "err", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", opts.Metrics.Handler())

	// accounts
	mux.HandleFunc("POST /auth/signup", userHandler.Signup)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/token", authHandler.Token)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /auth/me", guard.RequireFunc(authHandler.Me))
	mux.Handle("GET /users", guard.RequireFunc(userHandler.List, admin...))
	mux.Handle("POST /users/{id}/approve", guard.RequireFunc(userHandler.Approve, admin...))

	// courses
	mux.Handle("POST /courses", guard.RequireFunc(courseHandler.Create, admin...))
	mux.Handle("GET /courses", guard.RequireFunc(courseHandler.List))
	mux.Handle("PUT /courses/{id}", guard.RequireFunc(courseHandler.Update, admin...))
	mux.Handle("DELETE /courses/{id}", guard.RequireFunc(courseHandler.Delete, admin...))
	mux.Handle("GET /courses/{id}/students", guard.RequireFunc(courseHandler.Students, staff...))
	mux.Handle("POST /courses/{id}/enrollments", guard.RequireFunc(courseHandler.Enroll, admin...))
	mux.Handle("DELETE /enrollments/{id}", guard.RequireFunc(courseHandler.Unenroll, admin...))

	// sessions
	mux.Handle("POST /sessions", guard.RequireFunc(sessionHandler.Start, staff...))
	mux.Handle("POST /sessions/{id}/end", guard.RequireFunc(sessionHandler.End, staff...))
	mux.Handle("GET /sessions/active", guard.RequireFunc(sessionHandler.Active))
	mux.Handle("GET /sessions/{id}", guard.RequireFunc(sessionHandler.Details, staff...))
	mux.Handle("POST /sessions/{id}/join", guard.RequireFunc(joinHandler.Join, student...))
	mux.Handle("GET /attendance", guard.RequireFunc(attendanceHandler.History, student...))

	// faces
	mux.Handle("POST /enrollment", guard.RequireFunc(joinHandler.Enroll, student...))
	mux.Handle("DELETE /enrollment", guard.RequireFunc(joinHandler.Forget, student...))
	mux.Handle("POST /verify", guard.RequireFunc(joinHandler.Verify, student...))
	mux.HandleFunc("POST /identify", joinHandler.Identify)

	return RequestIDMiddleware()(LoggingMiddleware(logger, opts.Metrics)(SecurityHeadersMiddleware()(TimeoutMiddleware(opts.HTTP.RequestTimeout)(mux))))
}
