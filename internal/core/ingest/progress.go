package ingest

import (
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/stevedore/stevedore/internal/core"
)

// ProgressSink receives per-run and per-file progress events. Implementations
// must be safe for concurrent use; Completed and Failed are called from
// worker goroutines.
type ProgressSink interface {
	Init(total int)
	Completed(result core.FileResult)
	Failed(result core.FileResult)
}

// NopSink discards all progress events.
type NopSink struct{}

func (NopSink) Init(total int) {}
func (NopSink) Completed(result core.FileResult) {}
func (NopSink) Failed(result core.FileResult) {}

// LogSink reports progress through a structured logger.
type LogSink struct {
	Logger *logging.Logger
}

func (s LogSink) Init(total int) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("Ingestion run starting", zap.Int("total_files", total))
}

func (s LogSink) Completed(result core.FileResult) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("File processed",
		zap.String("name", result.Name),
		zap.String("outcome", string(result.Outcome)),
		zap.Int64("size", result.Size))
}

func (s LogSink) Failed(result core.FileResult) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn("File failed",
		zap.String("name", result.Name),
		zap.String("error", result.Message))
}

// MultiSink fans events out to several sinks in order.
type MultiSink []ProgressSink

func (m MultiSink) Init(total int) {
	for _, s := range m {
		s.Init(total)
	}
}

func (m MultiSink) Completed(result core.FileResult) {
	for _, s := range m {
		s.Completed(result)
	}
}

func (m MultiSink) Failed(result core.FileResult) {
	for _, s := range m {
		s.Failed(result)
	}
}
