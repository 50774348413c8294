package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type used for context values carried by this package.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	AuctionIDKey ContextKey = "auction_id"
)

// Log is the process-wide logger. Init must be called once at startup
// before any component logger is derived from it.
var Log zerolog.Logger

// Config controls how Init builds the global logger.
type Config struct {
	Level      string
	Format     string // "json" or "console"
	TimeFormat string
}

// DefaultConfig reads LOG_LEVEL/LOG_FORMAT from the environment, falling
// back to info/json.
func DefaultConfig() Config {
	return Config{
		Level:      getEnv("LOG_LEVEL", "info"),
		Format:     getEnv("LOG_FORMAT", "json"),
		TimeFormat: time.RFC3339,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Init configures the global Log according to cfg. Call once at process
// startup; component loggers derived below always read from Log.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = cfg.TimeFormat

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w = os.Stdout
	if cfg.Format == "console" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		Log = zerolog.New(cw).With().Timestamp().Str("service", "catalyst").Logger()
		return
	}

	Log = zerolog.New(w).With().Timestamp().Str("service", "catalyst").Logger()
}

// WithRequestID returns a context carrying requestID for FromContext to pick up.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithAuctionID returns a context carrying auctionID for FromContext to pick up.
func WithAuctionID(ctx context.Context, auctionID string) context.Context {
	return context.WithValue(ctx, AuctionIDKey, auctionID)
}

// FromContext returns a logger enriched with whichever of request_id/auction_id
// are present on ctx.
func FromContext(ctx context.Context) zerolog.Logger {
	l := Log.With()
	if v, ok := ctx.Value(RequestIDKey).(string); ok && v != "" {
		l = l.Str("request_id", v)
	}
	if v, ok := ctx.Value(AuctionIDKey).(string); ok && v != "" {
		l = l.Str("auction_id", v)
	}
	return l.Logger()
}

// Auction returns a logger scoped to a single auction.
func Auction(auctionID string) zerolog.Logger {
	return Log.With().Str("auction_id", auctionID).Logger()
}

// Bidder returns a logger scoped to a single bidder/endpoint code.
func Bidder(bidderCode string) zerolog.Logger {
	return Log.With().Str("bidder", bidderCode).Logger()
}

// HTTP returns a logger scoped to the http transport component.
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// Demand returns a logger scoped to the outbound demand-client component.
func Demand() zerolog.Logger {
	return Log.With().Str("component", "demand").Logger()
}

// Shaping returns a logger scoped to the traffic-shaping component.
func Shaping() zerolog.Logger {
	return Log.With().Str("component", "shaping").Logger()
}

// Notify returns a logger scoped to the billing/notification component.
func Notify() zerolog.Logger {
	return Log.With().Str("component", "notify").Logger()
}

// RequestLogger accumulates fields across a single request's lifetime and
// reports its own elapsed duration at completion.
type RequestLogger struct {
	requestID string
	start     time.Time
	fields    map[string]interface{}
}

// NewRequestLogger starts a per-request logger, stamping the current time
// as its origin for Duration()/LogComplete().
func NewRequestLogger(requestID string) *RequestLogger {
	return &RequestLogger{
		requestID: requestID,
		start:     time.Now(),
		fields:    make(map[string]interface{}),
	}
}

// WithField attaches an additional field to every subsequent log call and
// returns the same logger for chaining.
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) event(ev *zerolog.Event) *zerolog.Event {
	ev = ev.Str("request_id", r.requestID)
	for k, v := range r.fields {
		ev = ev.Interface(k, v)
	}
	return ev
}

// Info logs msg at info level with accumulated fields.
func (r *RequestLogger) Info(msg string) {
	r.event(Log.Info()).Msg(msg)
}

// Error logs msg at error level, attaching err.
func (r *RequestLogger) Error(msg string, err error) {
	r.event(Log.Error()).Err(err).Msg(msg)
}

// Duration reports elapsed time since the logger was created.
func (r *RequestLogger) Duration() time.Duration {
	return time.Since(r.start)
}

// LogComplete logs the terminal "request completed" event with status and
// elapsed duration in milliseconds.
func (r *RequestLogger) LogComplete(status int) {
	r.event(Log.Info()).
		Int("status", status).
		Float64("duration_ms", float64(r.Duration().Microseconds())/1000.0).
		Msg("request completed")
}
