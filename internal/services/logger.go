package services

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ServiceIdentifier interface {
	ID() string
}

type ServiceLogger struct {
	logger zerolog.Logger
}

func NewServiceLogger(svc ServiceIdentifier) *ServiceLogger {
	return &ServiceLogger{
		logger: log.With().Str("service", svc.ID()).Logger(),
	}
}

func (l *ServiceLogger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *ServiceLogger) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *ServiceLogger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *ServiceLogger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Request returns a child logger tagged with requestID. An empty id gets a
// fresh one.
func (l *ServiceLogger) Request(requestID string) (zerolog.Logger, string) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return l.logger.With().Str("request_id", requestID).Logger(), requestID
}

// SetLogLevel applies a level name such as "info" or "DEBUG" globally.
// Unknown names keep the current level.
func SetLogLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return zerolog.GlobalLevel()
	}
	zerolog.SetGlobalLevel(parsed)
	return parsed
}
