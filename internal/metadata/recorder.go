package metadata

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapRecorder is the production MetadataSink. It writes structured,
// newline-delimited JSON through zap, rotated by lumberjack so a long
// crawl never produces an unbounded single file.
type ZapRecorder struct {
	log *zap.Logger

	mu        sync.Mutex
	lastStats crawlStats
}

// RecorderConfig controls where and how crawl metadata is written.
type RecorderConfig struct {
	LogPath    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewZapRecorder builds a ZapRecorder writing JSON lines to cfg.LogPath,
// rotated according to cfg. An empty LogPath logs to stdout instead.
func NewZapRecorder(cfg RecorderConfig) *ZapRecorder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var writer zapcore.WriteSyncer
	if cfg.LogPath == "" {
		writer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	} else {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		})
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, zapcore.InfoLevel)
	return &ZapRecorder{log: zap.New(core)}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (r *ZapRecorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.log.Info("fetch",
		zap.String("url", fetchURL),
		zap.Int("http_status", httpStatus),
		zap.Duration("duration", duration),
		zap.String("content_type", contentType),
		zap.Int("retry_count", retryCount),
		zap.Int("crawl_depth", crawlDepth),
	)
}

func (r *ZapRecorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.log.Info("asset_fetch",
		zap.String("url", fetchURL),
		zap.Int("http_status", httpStatus),
		zap.Duration("duration", duration),
		zap.Int("retry_count", retryCount),
	)
}

func (r *ZapRecorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	fields := make([]zap.Field, 0, len(attrs)+4)
	fields = append(fields,
		zap.Time("observed_at", observedAt),
		zap.String("package", packageName),
		zap.String("action", action),
		zap.Int("cause", int(cause)),
		zap.String("error", errorString),
	)
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.log.Error("crawl_error", fields...)
}

func (r *ZapRecorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	fields := make([]zap.Field, 0, len(attrs)+2)
	fields = append(fields, zap.String("kind", string(kind)), zap.String("path", path))
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.log.Info("artifact", fields...)
}

func (r *ZapRecorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	stats := crawlStats{
		totalPages:  totalPages,
		totalErrors: totalErrors,
		totalAssets: totalAssets,
		durationMs:  duration.Milliseconds(),
	}

	r.mu.Lock()
	r.lastStats = stats
	r.mu.Unlock()

	r.log.Info("crawl_finished",
		zap.Int("total_pages", totalPages),
		zap.Int("total_errors", totalErrors),
		zap.Int("total_assets", totalAssets),
		zap.Int64("duration_ms", stats.durationMs),
	)
}

// Sync flushes any buffered log entries. Callers should defer this at
// process shutdown.
func (r *ZapRecorder) Sync() error {
	return r.log.Sync()
}

var _ MetadataSink = (*ZapRecorder)(nil)

// NoopSink discards every call. Package tests embed it and override only
// the method they care about observing, rather than stubbing all five
// MetadataSink methods by hand.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int) {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)         {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {
}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)      {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration) {}

var _ MetadataSink = NoopSink{}
