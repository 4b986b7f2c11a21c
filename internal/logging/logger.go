// Package logging builds the zap loggers used across leadscout.
// Each subsystem logs through a named child logger (its Category) so log
// lines can be filtered by the "logger" field.
package logging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and shutdown
	CategoryAPI      Category = "api"      // HTTP requests
	CategoryScraper  Category = "scraper"  // Search page fetching and parsing
	CategoryBrowser  Category = "browser"  // Headless browser lifecycle
	CategoryEnrich   Category = "enrich"   // LLM and heuristic enrichment
	CategoryStore    Category = "store"    // Lead persistence
	CategoryPipeline Category = "pipeline" // Scrape and ingest orchestration
)

// Options selects level and encoding.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// New builds a logger. JSON output uses zap's production config; console
// output uses the development encoder.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format: %s", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// ParseLevel converts a level name into a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}

// For returns the category logger derived from l. A nil l yields a no-op logger.
func For(l *zap.Logger, category Category) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.Named(string(category))
}

type ctxKey struct{}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// Timer tracks operation timing.
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer starts timing op.
func StartTimer(l *zap.Logger, op string) *Timer {
	if l == nil {
		l = zap.NewNop()
	}
	return &Timer{logger: l, op: op, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn("slow operation",
			zap.String("op", t.op),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
		return elapsed
	}
	t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}
