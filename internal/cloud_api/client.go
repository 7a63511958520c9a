package cloud_api

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

/**
 * This file contains the HTTP transport shared by every control-plane service client.
 * Transient failures (connection errors, 429, 5xx) are retried here and nowhere else.
 */

const (
	defaultRetryWaitMin = 1 * time.Second
	defaultRetryWaitMax = 30 * time.Second
)

// NewHTTPClient creates the retrying HTTP client used for control-plane calls.
func NewHTTPClient(retryMax int, timeout time.Duration, log zerolog.Logger) *retryablehttp.Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = retryMax
	httpClient.RetryWaitMin = defaultRetryWaitMin
	httpClient.RetryWaitMax = defaultRetryWaitMax
	httpClient.HTTPClient.Timeout = timeout
	// Hand the last response to the SDK so it can decode the service error code.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.Logger = leveledLogger{log: log.With().Str("component", "http").Logger()}
	return httpClient
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
