package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/nexusrtb/catalyst/internal/auction"
	"github.com/nexusrtb/catalyst/internal/billing"
	"github.com/nexusrtb/catalyst/internal/catalog"
	pbsconfig "github.com/nexusrtb/catalyst/internal/config"
	"github.com/nexusrtb/catalyst/internal/counterstore"
	"github.com/nexusrtb/catalyst/internal/demandclient"
	"github.com/nexusrtb/catalyst/internal/endpoints"
	"github.com/nexusrtb/catalyst/internal/fpd"
	"github.com/nexusrtb/catalyst/internal/metrics"
	"github.com/nexusrtb/catalyst/internal/middleware"
	"github.com/nexusrtb/catalyst/internal/notify"
	"github.com/nexusrtb/catalyst/internal/qpslimiter"
	"github.com/nexusrtb/catalyst/internal/shaping"
	"github.com/nexusrtb/catalyst/internal/storage"
	"github.com/nexusrtb/catalyst/internal/usersync"
	"github.com/nexusrtb/catalyst/pkg/logger"
	"github.com/nexusrtb/catalyst/pkg/redis"
)

// demandBidderLister adapts *catalog.DemandManager to endpoints.BidderLister
// for the /info/bidders endpoint.
type demandBidderLister struct {
	demand *catalog.DemandManager
}

func (d demandBidderLister) ListBidders() []string {
	snapshot := d.demand.Snapshot()
	codes := make([]string, 0, len(snapshot))
	for _, b := range snapshot {
		codes = append(codes, b.Code)
	}
	return codes
}

// Server represents the ad exchange's HTTP process: one *catalog.DemandManager
// and one *catalog.PublisherManager shared by the auction and billing
// pipelines, fed from whatever catalogue source initCatalog picked.
type Server struct {
	config      *ServerConfig
	httpServer  *http.Server
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	db          *storage.BidderStore
	publisher   *storage.PublisherStore
	sqlDB       *sql.DB
	redisClient *redis.Client

	demand      *catalog.DemandManager
	publishers  *catalog.PublisherManager
	auctionDeps *auction.Dependencies
	billingDeps *billing.Dependencies

	cancelBackground context.CancelFunc
}

// NewServer creates a new server instance
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
		Dur("timeout", s.config.Timeout).
		Str("billing_path", s.config.BillingPath).
		Msg("Initializing the catalyst exchange server")

	s.metrics = metrics.NewMetrics("pbs")
	log.Info().Msg("Prometheus metrics enabled")

	if err := s.initDatabase(); err != nil {
		log.Warn().Err(err).Msg("Database initialization failed, continuing with reduced functionality")
	}

	if err := s.initRedis(); err != nil {
		log.Warn().Err(err).Msg("Redis initialization failed, continuing with reduced functionality")
	}

	s.initMiddleware()
	s.initCatalog()
	s.initDependencies()
	s.initHandlers()

	return nil
}

// initDatabase initializes database connections
func (s *Server) initDatabase() error {
	log := logger.Log

	if s.config.DatabaseConfig == nil {
		log.Info().Msg("DB_HOST not set, database-backed features disabled")
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
		log.Warn().Err(err).Msg("Failed to connect to PostgreSQL, database-backed features disabled")
		return err
	}

	s.sqlDB = dbConn
	s.db = storage.NewBidderStore(dbConn)
	s.publisher = storage.NewPublisherStore(dbConn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bidders, err := s.db.ListActive(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load bidders from database")
	} else {
		log.Info().Int("count", len(bidders)).Msg("Bidders loaded from PostgreSQL")
	}

	publishers, err := s.publisher.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load publishers from database")
	} else {
		log.Info().Int("count", len(publishers)).Msg("Publishers loaded from PostgreSQL")
	}

	return nil
}

// initRedis initializes Redis client
func (s *Server) initRedis() error {
	log := logger.Log

	if s.config.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, Redis-backed features disabled")
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

// initMiddleware initializes middleware that needs to survive past request scope
func (s *Server) initMiddleware() {
	s.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	logger.Log.Info().Msg("Middleware initialized")
}

// initCatalog wires the demand/publisher catalogues to their source: files
// when no database is configured, Postgres otherwise, and starts the
// background pumps that keep them current.
func (s *Server) initCatalog() {
	log := logger.Log

	s.demand = catalog.NewDemandManager()
	s.publishers = catalog.NewPublisherManager()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelBackground = cancel

	if s.sqlDB != nil {
		provider := catalog.NewPostgresProvider(s.sqlDB)
		go catalog.RunBidderProvider(ctx, provider, s.config.CatalogPollInterval, s.demand)
		go catalog.RunPublisherProvider(ctx, provider, s.config.CatalogPollInterval, s.publishers)
		log.Info().Msg("Catalogue backed by PostgreSQL")
	} else if s.config.CatalogBiddersPath != "" && s.config.CatalogPublishersPath != "" {
		provider := catalog.NewFileProvider(s.config.CatalogBiddersPath, s.config.CatalogPublishersPath)
		go catalog.RunBidderProvider(ctx, provider, s.config.CatalogPollInterval, s.demand)
		go catalog.RunPublisherProvider(ctx, provider, s.config.CatalogPollInterval, s.publishers)
		log.Info().Str("bidders_path", s.config.CatalogBiddersPath).Msg("Catalogue backed by file provider")
	} else {
		log.Warn().Msg("No catalogue source configured; demand and publisher catalogues start empty")
	}
}

// initDependencies builds the shared Dependencies bundles the auction and
// billing pipelines run against.
func (s *Server) initDependencies() {
	auctionCfg := auction.Config{
		SchainASI:       s.config.SchainASI,
		SchainName:      s.config.SchainName,
		SchainMaxHops:   s.config.SchainMaxHops,
		EventDomain:     s.config.EventDomain,
		BillingPath:     s.config.BillingPath,
		MinFloor:        s.config.MinFloor,
		ForceBidEnabled: s.config.ForceBidEnabled,
	}

	notifyCache := notify.New(s.redisClient, 10*time.Minute)
	var userSyncStore *usersync.Store
	if s.redisClient != nil {
		userSyncStore = usersync.NewStore(s.redisClient)
	}

	var pubCounters, demandCounters auction.CounterSink
	if s.sqlDB != nil {
		pubCounters = counterstore.NewPublisherCounters(s.sqlDB, s.config.CountersFlushInterval)
		demandCounters = counterstore.NewDemandCounters(s.sqlDB, s.config.CountersFlushInterval)
	}

	s.billingDeps = &billing.Dependencies{
		Notify:  notifyCache,
		Shaping: shaping.NewManager(),
		Metrics: billing.NewMetrics("catalyst_billing"),
	}

	s.auctionDeps = &auction.Dependencies{
		Config:            auctionCfg,
		Demand:            s.demand,
		Publishers:        s.publishers,
		Shaping:           s.billingDeps.Shaping,
		QPS:               qpslimiter.New(),
		DemandHTTP:        demandclient.NewClient(),
		Notify:            notifyCache,
		UserSync:          userSyncStore,
		FPD:               fpd.NewProcessor(fpd.DefaultConfig()),
		EIDFilter:         fpd.NewEIDFilter(fpd.DefaultConfig()),
		PublisherCounters: pubCounters,
		DemandCounters:    demandCounters,
	}
}

// initHandlers initializes HTTP handlers and builds the handler chain
func (s *Server) initHandlers() {
	log := logger.Log

	healthHandler := endpoints.NewHealthHandler()
	statusHandler := endpoints.NewStatusHandler()
	infoBiddersHandler := endpoints.NewInfoBiddersHandler(demandBidderLister{s.demand})
	bidRequestHandler := endpoints.NewBidRequestHandler(s.auctionDeps)
	billingHandler := endpoints.NewBillingHandler(s.billingDeps)
	outSyncHandler := endpoints.NewOutSyncHandler(s.publishers, s.demand, s.config.HostURL)

	var inSyncHandler http.Handler
	if s.auctionDeps.UserSync != nil {
		inSyncHandler = endpoints.NewInSyncHandler(s.auctionDeps.UserSync)
	} else {
		inSyncHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"user sync store unavailable"}`, http.StatusServiceUnavailable)
		})
	}

	privacyConfig := middleware.DefaultPrivacyConfig()
	if s.config.DisableGDPREnforcement {
		privacyConfig.EnforceGDPR = false
		log.Warn().Msg("GDPR enforcement disabled via PBS_DISABLE_GDPR_ENFORCEMENT")
	}
	privacyMiddleware := middleware.NewPrivacyMiddleware(privacyConfig)
	privacyProtectedBidRequest := privacyMiddleware(bidRequestHandler)

	log.Info().
		Bool("gdpr_enforcement", privacyConfig.EnforceGDPR).
		Bool("coppa_enforcement", privacyConfig.EnforceCOPPA).
		Bool("strict_mode", privacyConfig.StrictMode).
		Msg("Privacy middleware initialized")

	mux := http.NewServeMux()
	mux.Handle("GET /hi", healthHandler)
	mux.Handle("GET /status", statusHandler)
	mux.Handle("GET /info/bidders", infoBiddersHandler)
	mux.Handle("POST /br", privacyProtectedBidRequest)
	mux.Handle("GET /sync", outSyncHandler)
	mux.Handle("GET /sync/in/{partner}", inSyncHandler)
	mux.Handle("GET /"+s.config.BillingPath, billingHandler)

	mux.Handle("/metrics", metrics.Handler())

	publisherAdminHandler := endpoints.NewPublisherAdminHandler(s.redisClient)
	mux.Handle("/admin/dashboard", endpoints.NewDashboardHandler())
	mux.Handle("/admin/metrics", endpoints.NewMetricsAPIHandler())
	mux.Handle("/admin/publishers", publisherAdminHandler)
	mux.Handle("/admin/publishers/", publisherAdminHandler)

	handler := s.buildHandler(mux)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  pbsconfig.ServerReadTimeout,
		WriteTimeout: pbsconfig.ServerWriteTimeout,
		IdleTimeout:  pbsconfig.ServerIdleTimeout,
	}
}

// buildHandler builds the middleware chain
func (s *Server) buildHandler(mux *http.ServeMux) http.Handler {
	log := logger.Log

	cors := middleware.NewCORS(middleware.DefaultCORSConfig())
	security := middleware.NewSecurity(nil)
	publisherAuthConfig := middleware.DefaultPublisherAuthConfig()
	publisherAuth := middleware.NewPublisherAuth(publisherAuthConfig)

	authConfig := middleware.DefaultAuthConfig()
	authConfig.BypassPaths = append(authConfig.BypassPaths, "/"+s.config.BillingPath)
	if publisherAuthConfig.Enabled {
		authConfig.BypassPaths = append(authConfig.BypassPaths, "/br")
	}
	auth := middleware.NewAuth(authConfig)
	sizeLimiter := middleware.NewSizeLimiter(middleware.DefaultSizeLimitConfig())
	gzipMiddleware := middleware.NewGzip(middleware.DefaultGzipConfig())

	auth.SetMetrics(s.metrics)
	s.rateLimiter.SetMetrics(s.metrics)

	if s.publisher != nil {
		publisherAuth.SetPublisherStore(s.publisher)
		log.Info().Msg("Publisher store connected to authentication middleware")
	}

	if s.redisClient != nil {
		auth.SetRedisClient(s.redisClient)
		publisherAuth.SetRedisClient(s.redisClient)
		log.Info().Msg("Redis client set for auth middlewares")
	}

	log.Info().
		Bool("cors_enabled", true).
		Bool("security_headers_enabled", security.GetConfig().Enabled).
		Bool("auth_enabled", auth.IsEnabled()).
		Bool("rate_limiting_enabled", s.rateLimiter != nil).
		Msg("Middleware chain built")

	// CORS -> Security -> Logging -> Size Limit -> Auth -> PublisherAuth -> Rate Limit -> Metrics -> Gzip -> Handler
	handler := http.Handler(mux)
	handler = gzipMiddleware.Middleware(handler)
	handler = s.metrics.Middleware(handler)
	handler = s.rateLimiter.Middleware(handler)
	handler = publisherAuth.Middleware(handler)
	handler = auth.Middleware(handler)
	handler = sizeLimiter.Middleware(handler)
	handler = loggingMiddleware(handler)
	handler = security.Middleware(handler)
	handler = cors.Middleware(handler)

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

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.cancelBackground != nil {
		s.cancelBackground()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
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
			Str("user_agent", r.UserAgent()).
			Msg("HTTP request")
	})
}

// generateRequestID creates a unique request ID using cryptographically secure randomness
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}
