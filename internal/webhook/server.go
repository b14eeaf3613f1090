package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finhooks/ledgerlink/internal/deliveries"
)

// TokenStore holds the verification secret.
type TokenStore interface {
	Set(ctx context.Context, token string)
	Get(ctx context.Context) string
	IsEstablished(ctx context.Context) bool
}

// EventDispatcher routes validated events.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// DeliveryLog records processed deliveries. Optional.
type DeliveryLog interface {
	Record(ctx context.Context, e deliveries.Entry) (string, error)
	SeenBefore(ctx context.Context, digest string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// Checks reports static configuration presence for the health endpoint.
type Checks struct {
	NotionTokenSet        bool
	DayDatabaseConfigured bool
}

// Config holds webhook server configuration.
type Config struct {
	Listen          string
	Path            string
	SignatureHeader string
	MaxBodySize     int64
	ServiceName     string
	Version         string
	Checks          Checks
}

// Server is the webhook HTTP server.
type Server struct {
	config     Config
	tokens     TokenStore
	dispatcher EventDispatcher
	deliveries DeliveryLog
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a webhook server. deliveryLog may be nil to disable the
// delivery log.
func New(config Config, tokens TokenStore, dispatcher EventDispatcher, deliveryLog DeliveryLog, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		tokens:     tokens,
		dispatcher: dispatcher,
		deliveries: deliveryLog,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"path", s.config.Path,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Post(s.config.Path, s.handleNotionWebhook)
	r.Get("/webhook/status", s.handleStatus)
	r.Post("/webhook/test", s.handleTestWebhook)

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleNotionWebhook handles both the verification handshake and
// steady-state event deliveries on the same endpoint.
func (s *Server) handleNotionWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	payload, err := Classify(body)
	if err != nil {
		s.logger.Error("failed to parse webhook body", "error", err)
		s.respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// Handshake deliveries establish the secret and are themselves
	// unsigned; they never reach signature verification.
	if payload.Kind == KindHandshake {
		s.handleHandshake(ctx, w, body, payload.Token)
		return
	}

	signature := r.Header.Get(s.config.SignatureHeader)
	if signature == "" {
		s.logger.Warn("webhook signature missing", "header", s.config.SignatureHeader)
		s.respondError(w, http.StatusUnauthorized, s.config.SignatureHeader+" header required")
		return
	}

	secret := s.tokens.Get(ctx)
	if secret == "" {
		// Fail closed: without a secret no delivery can be trusted.
		s.logger.Warn("no verification secret established, rejecting delivery")
		s.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := verifySignature(body, signature, secret); err != nil {
		s.logger.Warn("webhook signature verification failed")
		s.respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	event := payload.Event
	if !ValidateShape(event) {
		// Authenticated but malformed: acknowledged as a no-op so the
		// sender does not retry.
		s.logger.Warn("invalid payload: missing entity.type, entity.id or type",
			"entity_type", event.Entity.Type,
			"entity_id", event.Entity.ID,
			"event_type", event.Type,
		)
		s.recordDelivery(ctx, body, event, deliveries.OutcomeIgnored)
		s.respondAck(w, "Webhook payload ignored")
		return
	}

	ev := Event{
		EntityType: event.Entity.Type,
		EntityID:   event.Entity.ID,
		EventType:  event.Type,
		RawBody:    body,
		Signature:  signature,
	}
	if event.Data != nil {
		ev.UpdatedProperties = event.Data.UpdatedProperties
	}

	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		s.logger.Error("failed to process webhook event",
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID,
			"error", err,
		)
		s.recordDelivery(ctx, body, event, deliveries.OutcomeFailed)
		s.respondError(w, http.StatusInternalServerError, "failed to process webhook event")
		return
	}

	s.recordDelivery(ctx, body, event, deliveries.OutcomeProcessed)
	s.respondAck(w, "Webhook processed successfully")
}

func (s *Server) handleHandshake(ctx context.Context, w http.ResponseWriter, body []byte, token string) {
	s.tokens.Set(ctx, token)
	s.logger.Info("verification token received, subscription active")

	if s.deliveries != nil {
		_, err := s.deliveries.Record(ctx, deliveries.Entry{
			BodyDigest: deliveries.Digest(body),
			EntityType: "verification",
			EventType:  "handshake",
			Outcome:    deliveries.OutcomeHandshake,
		})
		if err != nil {
			s.logger.Error("failed to record handshake delivery", "error", err)
		}
	}

	s.respondAck(w, "Verification token received and stored")
}

// handleStatus reports whether a verification secret is established, never
// revealing its value.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, StatusResponse{
		Verified:  s.tokens.IsEstablished(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleTestWebhook logs and echoes the body, unauthenticated.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	s.logger.Info("test webhook received", "bytes", len(body))

	var echoed any
	if err := json.Unmarshal(body, &echoed); err != nil {
		echoed = string(body)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Test webhook received",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"body":      echoed,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	count := 0
	if s.deliveries != nil {
		var err error
		count, err = s.deliveries.Count(r.Context())
		if err != nil {
			s.logger.Error("failed to count deliveries", "error", err)
			s.respondError(w, http.StatusInternalServerError, "failed to count deliveries")
			return
		}
	}

	s.respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		DeliveryCount: count,
		Checks: map[string]bool{
			"notion_token":       s.config.Checks.NotionTokenSet,
			"day_database_id":    s.config.Checks.DayDatabaseConfigured,
			"verification_token": s.tokens.IsEstablished(r.Context()),
		},
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, RootResponse{
		Message:   s.config.ServiceName,
		Version:   s.config.Version,
		Status:    "running",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// readBody reads the request body enforcing the size limit. On failure it
// writes the error response and returns ok=false.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	maxSize := s.config.MaxBodySize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}

	limitedReader := io.LimitReader(r.Body, maxSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return nil, false
	}
	if int64(len(body)) > maxSize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, false
	}
	return body, true
}

// recordDelivery appends to the delivery log, flagging redeliveries of an
// identical body. Log failures never affect the HTTP response.
func (s *Server) recordDelivery(ctx context.Context, body []byte, event *EventPayload, outcome string) {
	if s.deliveries == nil {
		return
	}

	digest := deliveries.Digest(body)
	if seen, err := s.deliveries.SeenBefore(ctx, digest); err != nil {
		s.logger.Error("failed to check delivery digest", "error", err)
	} else if seen {
		s.logger.Info("redelivery of previously seen body",
			"digest", digest,
			"entity_id", event.Entity.ID,
		)
	}

	_, err := s.deliveries.Record(ctx, deliveries.Entry{
		BodyDigest: digest,
		EntityType: event.Entity.Type,
		EntityID:   event.Entity.ID,
		EventType:  event.Type,
		Outcome:    outcome,
	})
	if err != nil {
		s.logger.Error("failed to record delivery", "error", err)
	}
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondAck sends the fixed success acknowledgement.
func (s *Server) respondAck(w http.ResponseWriter, message string) {
	s.respondJSON(w, http.StatusOK, AckResponse{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Success: false, Error: message})
}
