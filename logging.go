package bulwark

import (
	"fmt"
	"log/slog"
)

// SlogLogger adapts a slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger returns a Logger backed by l. A nil l uses slog.Default.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{logger: l}
}

// With returns a child logger carrying the given attributes.
func (s *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: s.logger.With(args...)}
}

func (s *SlogLogger) Debug(format string, args ...any) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}

func (s *SlogLogger) Info(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

func (s *SlogLogger) Warn(format string, args ...any) {
	s.logger.Warn(fmt.Sprintf(format, args...))
}

func (s *SlogLogger) Error(format string, args ...any) {
	s.logger.Error(fmt.Sprintf(format, args...))
}
