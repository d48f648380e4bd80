package alertimpl

import (
	"context"

	"github.com/orgball2608/video-distributor/internal/alert"
	"github.com/orgball2608/video-distributor/pkg/logger"
)

// LogChannel writes every alert to the structured log. It is always wired,
// so alerts survive even when telegram and slack are down.
type LogChannel struct {
	logger logger.Logger
}

func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{logger: log}
}

var _ alert.Channel = (*LogChannel)(nil)

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(_ context.Context, severity alert.Severity, message string, alertContext map[string]string) error {
	kvs := []any{"severity", severity.String()}
	for k, v := range alertContext {
		kvs = append(kvs, k, v)
	}

	switch severity {
	case alert.SeverityCritical:
		l.logger.Error(message, kvs...)
	case alert.SeverityHigh:
		l.logger.Warn(message, kvs...)
	default:
		l.logger.Info(message, kvs...)
	}
	return nil
}
