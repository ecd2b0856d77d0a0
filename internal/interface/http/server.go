// Package http implements the REST API for the dojang exam hub.
// It exposes the exam, grading and graduation operations as JSON endpoints
// for the front-desk and instructor applications.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dojang-hub/dojang-exam-hub/internal/application/command"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/query"
	"github.com/dojang-hub/dojang-exam-hub/internal/application/saga"
	"github.com/dojang-hub/dojang-exam-hub/internal/domain/shared"
	"github.com/dojang-hub/dojang-exam-hub/internal/interface/http/handlers"
	"github.com/dojang-hub/dojang-exam-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config содержит настройки HTTP-сервера. Нулевые значения тайм-аутов
// означают «без ограничения», поэтому в проде всегда стартуем от
// DefaultConfig.
type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes ограничивает размер тела запроса (0 = без лимита).
	MaxBodyBytes int64

	EnableCORS     bool
	AllowedOrigins []string

	// RateLimitPerMinute - запросов в минуту с одного IP (0 = выключено).
	RateLimitPerMinute int

	// APIKeyHeader и APIKeys защищают staff-эндпоинты. Пустой список
	// ключей отключает аутентификацию (локальная разработка).
	APIKeyHeader string
	APIKeys      []string
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		EnableCORS:         true,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 100,
		APIKeyHeader:       "X-API-Key",
		APIKeys:            []string{},
	}
}

// Address возвращает адрес вида host:port.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	CreateExamHandler        *command.CreateExamHandler
	ManageExamHandler        *command.ManageExamHandler
	EnrollCandidateHandler   *command.EnrollCandidateHandler
	UnenrollCandidateHandler *command.UnenrollCandidateHandler
	RecordPaymentHandler     *command.RecordPaymentHandler
	FinalizeGradeHandler     *command.FinalizeGradeHandler
	ReviewGradeHandler       *command.ReviewGradeHandler
	ApproveGraduationHandler *command.ApproveGraduationHandler
	CertifyGraduationHandler *command.CertifyGraduationHandler
	CancelGraduationHandler  *command.CancelGraduationHandler

	// Query Handlers (CQRS Read Side)
	ListExamsHandler             *query.ListExamsHandler
	GetExamRosterHandler         *query.GetExamRosterHandler
	GetEligibilityHandler        *query.GetEligibilityHandler
	GetGradeHandler              *query.GetGradeHandler
	GetStudentGraduationsHandler *query.GetStudentGraduationsHandler

	// Batch graduation processing
	GraduationProcessor *saga.GraduationProcessor

	// DefaultEnrollPolicy применяется, когда запрос не задаёт политику явно.
	// Пустое значение трактуется как advisory.
	DefaultEnrollPolicy command.EnrollmentPolicy

	// BatchManualApproval принуждает батчи аттестаций создавать записи в
	// статусе pending для ручного одобрения вместо немедленного каскада.
	BatchManualApproval bool

	// Logger
	Logger *logger.Logger

	// Health Check Dependencies
	HealthChecker handlers.HealthChecker
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server связывает роутер, middleware и обработчики команд/запросов.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	logger     *logger.Logger

	rateLimiter *rateLimiter
	apiKeyAuth  *handlers.APIKeyAuth

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer собирает сервер: роуты, цепочку middleware и http.Server.
// Слушать начинает только Start.
func NewServer(config Config, deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: log,
	}

	if config.RateLimitPerMinute > 0 {
		s.rateLimiter = newRateLimiter(config.RateLimitPerMinute, time.Minute)
	}
	if len(config.APIKeys) > 0 {
		s.apiKeyAuth = handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeys)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth) // Kubernetes alias
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Exams
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/exams", s.staff(s.handleCreateExam))
	s.router.HandleFunc("GET /api/v1/exams", s.handleListExams)
	s.router.Handle("POST /api/v1/exams/{id}/actions", s.staff(s.handleManageExam))
	s.router.HandleFunc("GET /api/v1/exams/{id}/roster", s.handleGetRoster)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Enrollment & Payments
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/exams/{id}/candidates", s.staff(s.handleEnroll))
	s.router.Handle("DELETE /api/v1/exams/{id}/candidates/{studentID}", s.staff(s.handleUnenroll))
	s.router.Handle("POST /api/v1/exams/{id}/candidates/{studentID}/payments", s.staff(s.handleRecordPayment))
	s.router.HandleFunc("GET /api/v1/exams/{id}/candidates/{studentID}/eligibility", s.handleGetEligibility)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Grading
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/exams/{id}/candidates/{studentID}/grade", s.staff(s.handleFinalizeGrade))
	s.router.HandleFunc("GET /api/v1/grades/{id}", s.handleGetGrade)
	s.router.Handle("POST /api/v1/grades/{id}/review", s.staff(s.handleReviewGrade))

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Graduations
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/exams/{id}/graduations", s.staff(s.handleProcessBatch))
	s.router.Handle("POST /api/v1/graduations/{id}/approve", s.staff(s.handleApproveGraduation))
	s.router.Handle("POST /api/v1/graduations/{id}/certify", s.staff(s.handleCertifyGraduation))
	s.router.Handle("POST /api/v1/graduations/{id}/cancel", s.staff(s.handleCancelGraduation))
	s.router.HandleFunc("GET /api/v1/students/{id}/graduations", s.handleGetStudentGraduations)
}

// staff wraps a mutating handler with API key authentication when configured.
func (s *Server) staff(h http.HandlerFunc) http.Handler {
	var handler http.Handler = h
	if s.apiKeyAuth != nil {
		handler = s.apiKeyAuth.Middleware(handler)
	}
	return handler
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain оборачивает роутер в middleware. Список читается
// изнутри наружу: rate limit и CORS срабатывают первыми, лимит тела - у
// самого обработчика.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := handler

	if s.config.MaxBodyBytes > 0 {
		h = handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes)(h)
	}
	h = handlers.SecurityHeadersMiddleware(h)
	h = s.requestIDMiddleware(h)
	h = s.loggingMiddleware(h)
	h = s.recoveryMiddleware(h)
	if s.config.EnableCORS {
		h = s.corsMiddleware(h)
	}
	if s.rateLimiter != nil {
		h = s.rateLimitMiddleware(h)
	}

	return h
}

// requestIDMiddleware tags every request with an ID, honoring one supplied by
// an upstream proxy so traces line up across services.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id)))
	})
}

// loggingMiddleware emits one structured line per completed request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		started := time.Now()

		next.ServeHTTP(rw, r)

		s.logger.Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Int64("duration_ms", time.Since(started).Milliseconds()),
			logger.String("ip", getClientIP(r)),
			logger.String("request_id", getRequestID(r.Context())),
		)
	})
}

// recoveryMiddleware converts handler panics into a 500 instead of killing
// the connection.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			s.logger.Error("panic recovered",
				logger.Any("error", rec),
				logger.String("stack", string(debug.Stack())),
				logger.String("path", r.URL.Path),
				logger.String("request_id", getRequestID(r.Context())),
			)
			writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflights and reflects origins from the allow list.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range s.config.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// rateLimitMiddleware rejects clients that exceed the per-IP budget.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start runs ListenAndServe and blocks until the server stops. A clean
// shutdown is not an error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine and reports its terminal error,
// if any, on the returned channel.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Start(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests and stops the listener. Safe to call on
// a server that never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start has been called and Shutdown has not.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been serving, zero when stopped.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.config.Address()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the envelope every endpoint replies with. Either Data or
// Error is set, never both.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError carries a machine-readable code alongside the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata such as pagination counters.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
	Page       int       `json:"page,omitempty"`
	PageSize   int       `json:"page_size,omitempty"`
	HasMore    bool      `json:"has_more,omitempty"`
}

// send stamps the envelope and serializes it. Encoding failures are ignored:
// the status line is already on the wire by the time Encode runs.
func send(w http.ResponseWriter, status int, resp JSONResponse) {
	if resp.Meta == nil {
		resp.Meta = &ResponseMeta{}
	}
	resp.Meta.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON replies with data wrapped in the standard envelope.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	send(w, status, JSONResponse{
		Success: status < http.StatusBadRequest,
		Data:    data,
		Meta:    &ResponseMeta{Version: "v1"},
	})
}

// writeJSONWithMeta is writeJSON for list endpoints that report pagination.
func writeJSONWithMeta(w http.ResponseWriter, r *http.Request, status int, data interface{}, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Version = "v1"

	send(w, status, JSONResponse{
		Success:   status < http.StatusBadRequest,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError replies with an error envelope.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	send(w, status, JSONResponse{
		Error: &APIError{Code: code, Message: message},
	})
}

// writeDomainError maps a domain error onto an HTTP status code through the
// shared error taxonomy: validation → 400, not found → 404, conflicts and
// illegal state transitions → 409, everything else → 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var domainErr *shared.DomainError
	code := "internal_error"
	if errors.As(err, &domainErr) {
		code = domainErr.Domain + "_error"
	}

	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, code, err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, code, err.Error())
	case shared.IsConflict(err), shared.IsStateError(err):
		writeJSONError(w, http.StatusConflict, code, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter records the status code for the access log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP, preferring proxy headers over the
// socket address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

func generateRequestID() string {
	return uuid.NewString()
}

// getQueryParam reads a query parameter, falling back to def when absent.
func getQueryParam(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

// getQueryParamInt reads an integer query parameter; malformed values fall
// back to def rather than erroring, pagination should be forgiving.
func getQueryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getQueryParamBool treats "true", "1" and "yes" as true.
func getQueryParamBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// rateLimiter counts requests per key in fixed windows. Counters reset when
// a new window starts, so a burst straddling the boundary can briefly exceed
// the limit; that is acceptable for abuse protection on a staff API.
type rateLimiter struct {
	mu      sync.Mutex
	counts  map[string]*windowCount
	limit   int
	window  time.Duration
}

type windowCount struct {
	start time.Time
	n     int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		counts: make(map[string]*windowCount),
		limit:  limit,
		window: window,
	}
	go rl.evictStale()
	return rl
}

func (rl *rateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	wc, ok := rl.counts[key]
	if !ok || now.Sub(wc.start) >= rl.window {
		rl.counts[key] = &windowCount{start: now, n: 1}
		return true
	}
	if wc.n >= rl.limit {
		return false
	}
	wc.n++
	return true
}

// evictStale drops counters whose window has long expired so the map does
// not grow with one entry per IP ever seen.
func (rl *rateLimiter) evictStale() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * rl.window)
		rl.mu.Lock()
		for key, wc := range rl.counts {
			if wc.start.Before(cutoff) {
				delete(rl.counts, key)
			}
		}
		rl.mu.Unlock()
	}
}
