package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"time"

	bridgeconfig "github.com/admeshlabs/mediation-bridge/internal/config"
	"github.com/admeshlabs/mediation-bridge/internal/consent"
	"github.com/admeshlabs/mediation-bridge/internal/dispatch"
	"github.com/admeshlabs/mediation-bridge/internal/endpoints"
	"github.com/admeshlabs/mediation-bridge/internal/events"
	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/internal/metrics"
	"github.com/admeshlabs/mediation-bridge/internal/partner/sim"
	"github.com/admeshlabs/mediation-bridge/internal/storage"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
	"github.com/admeshlabs/mediation-bridge/pkg/redis"
)

// Server represents the mediation bridge server
type Server struct {
	config      *ServerConfig
	httpServer  *http.Server
	metrics     *metrics.Metrics
	dispatcher  *dispatch.Dispatcher
	placements  storage.PlacementStore
	redisClient *redis.Client
}

// NewServer creates a new bridge server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	s := &Server{
		config: cfg,
	}

	if err := s.initialize(); err != nil {
		return nil, err
	}

	return s, nil
}

// initialize sets up all server components
func (s *Server) initialize() error {
	log := logger.Log

	log.Info().
		Str("port", s.config.Port).
		Dur("load_timeout", s.config.LoadTimeout).
		Dur("show_timeout", s.config.ShowTimeout).
		Msg("Initializing mediation bridge server")

	// Initialize Prometheus metrics
	s.metrics = metrics.NewMetrics("mediation")
	log.Info().Msg("Prometheus metrics enabled")

	// Initialize database if configured
	if err := s.initDatabase(); err != nil {
		// Database failures are non-fatal, log and continue
		log.Warn().Err(err).Msg("Database initialization failed, continuing with reduced functionality")
	}

	// Initialize Redis if configured
	if err := s.initRedis(); err != nil {
		// Redis failures are non-fatal, log and continue
		log.Warn().Err(err).Msg("Redis initialization failed, continuing with reduced functionality")
	}

	// Initialize the dispatcher; partner setup failures are fatal since
	// every subsequent load would fail anyway
	if err := s.initDispatcher(); err != nil {
		return err
	}

	// Initialize handlers and build HTTP server
	s.initHandlers()

	return nil
}

// initDatabase initializes the placement catalog
func (s *Server) initDatabase() error {
	log := logger.Log

	if s.config.DatabaseConfig == nil {
		log.Info().Msg("DB_HOST not set, using in-memory placement catalog")
		s.placements = storage.NewMemoryPlacementStore()
		return nil
	}

	dbCfg := s.config.DatabaseConfig
	dbConn, err := storage.NewDBConnection(
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Name,
		dbCfg.SSLMode,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, using in-memory placement catalog")
		s.placements = storage.NewMemoryPlacementStore()
		return err
	}

	store := storage.NewPlacementStore(dbConn)
	s.placements = store

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	placements, err := store.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load placements from database")
	} else {
		log.Info().
			Int("count", len(placements)).
			Msg("Placements loaded from PostgreSQL")
	}

	return nil
}

// initRedis initializes the Redis client
func (s *Server) initRedis() error {
	log := logger.Log

	if s.config.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, event counters disabled")
		return nil
	}

	var err error
	s.redisClient, err = redis.New(s.config.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect to Redis")
		return err
	}

	log.Info().Msg("Redis client initialized")
	return nil
}

// initDispatcher wires the partner SDK, event sink and consent signals
func (s *Server) initDispatcher() error {
	log := logger.Log

	sdk := sim.New(s.config.ToPartnerConfig())

	// Side-channel events flow to Redis counters when available
	var side mediation.Listener = mediation.NopListener{}
	if s.redisClient != nil {
		side = events.NewRedisSink(s.redisClient, "")
		log.Info().Msg("Redis event sink connected")
	}

	s.dispatcher = dispatch.New(sdk, side, s.metrics)

	if err := s.dispatcher.Setup(map[string]string{
		mediation.CredentialAppID:  s.config.AppID,
		mediation.CredentialAppKey: s.config.AppKey,
	}); err != nil {
		return err
	}
	log.Info().Msg("Partner SDK initialized")

	// Propagate any consent signals configured in the environment
	signals := consent.ParseSignals(consentEnv())
	consent.Propagate(sdk, signals, s.metrics)

	return nil
}

// consentEnv collects consent signals from the environment
func consentEnv() map[string]string {
	values := make(map[string]string)
	for key, env := range map[string]string{
		mediation.ConsentKeyGDPRApplies: "GDPR_APPLIES",
		mediation.ConsentKeyGDPRConsent: "GDPR_CONSENT",
		mediation.ConsentKeyUSPrivacy:   "US_PRIVACY",
		mediation.ConsentKeyCOPPA:       "COPPA",
		mediation.ConsentKeyDoNotTrack:  "DO_NOT_TRACK",
	} {
		if v := os.Getenv(env); v != "" {
			values[key] = v
		}
	}
	return values
}

// initHandlers initializes HTTP handlers and builds the handler chain
func (s *Server) initHandlers() {
	bridgeHandler := endpoints.NewBridgeHandler(
		s.dispatcher,
		s.placements,
		s.config.LoadTimeout,
		s.config.ShowTimeout,
	)

	var counters endpoints.EventCounters
	if s.redisClient != nil {
		counters = s.redisClient
	}
	statsHandler := endpoints.NewStatsHandler(counters, "")

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/load", bridgeHandler.HandleLoad)
	mux.HandleFunc("/v1/show", bridgeHandler.HandleShow)
	mux.HandleFunc("/v1/invalidate", bridgeHandler.HandleInvalidate)
	mux.HandleFunc("/v1/stats", statsHandler.HandleStats)
	mux.Handle("/health", healthHandler())
	mux.Handle("/health/ready", readyHandler(s.redisClient))
	mux.Handle("/metrics", metrics.Handler())

	handler := s.buildHandler(mux)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  bridgeconfig.ServerReadTimeout,
		WriteTimeout: bridgeconfig.ServerWriteTimeout,
		IdleTimeout:  bridgeconfig.ServerIdleTimeout,
	}
}

// buildHandler builds the middleware chain
func (s *Server) buildHandler(mux *http.ServeMux) http.Handler {
	handler := http.Handler(mux)
	handler = s.metrics.Middleware(handler)
	handler = loggingMiddleware(handler)
	return handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log := logger.Log
	log.Info().Str("addr", s.httpServer.Addr).Msg("Server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown performs graceful shutdown
func (s *Server) Shutdown(ctx context.Context) error {
	log := logger.Log
	log.Info().Msg("Starting graceful shutdown")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Redis client")
		}
	}

	log.Info().Msg("Server stopped gracefully")
	return nil
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		event := logger.Log.Info()
		if wrapped.statusCode >= 400 {
			event = logger.Log.Warn()
		}
		if wrapped.statusCode >= 500 {
			event = logger.Log.Error()
		}

		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", duration).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// healthHandler returns a simple liveness check
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode health response")
		}
	})
}

// readyHandler returns a readiness check with dependency verification
func readyHandler(redisClient *redis.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]interface{})
		allHealthy := true

		if redisClient != nil {
			if err := redisClient.Ping(ctx); err != nil {
				checks["redis"] = map[string]interface{}{
					"status": "unhealthy",
					"error":  err.Error(),
				}
				allHealthy = false
			} else {
				pool := redisClient.PoolStats()
				checks["redis"] = map[string]interface{}{
					"status":        "healthy",
					"pool_total":    pool.TotalConns,
					"pool_idle":     pool.IdleConns,
					"pool_timeouts": pool.Timeouts,
				}
			}
		} else {
			checks["redis"] = map[string]interface{}{
				"status": "disabled",
			}
		}

		status := http.StatusOK
		if !allHealthy {
			status = http.StatusServiceUnavailable
		}

		response := map[string]interface{}{
			"ready":     allHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Log.Error().Err(err).Msg("failed to encode readiness response")
		}
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}
