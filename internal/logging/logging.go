package logging

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ringlabs/callsync/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger based on configuration
func Setup(cfg *config.LoggingConfig, env string) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer
	if cfg.Format == "json" || env == "production" {
		output = os.Stdout
	} else {
		// Pretty console output for development
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "callsync").
		Logger()
}

// NewLogger creates a new logger with additional context
func NewLogger(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// RequestLogger is a Gin middleware for structured request logging
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get("request_id")
		reqIDStr, _ := requestID.(string)

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		} else if c.Writer.Status() >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", reqIDStr).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", raw).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Msg("HTTP request")
	}
}

// LogWebhookEvent logs the disposition of one inbound provider event
func LogWebhookEvent(externalEventID, eventType, status string) {
	log.Info().
		Str("external_event_id", externalEventID).
		Str("event_type", eventType).
		Str("status", status).
		Msg("Webhook event")
}

// LogSyncFailure logs a best-effort CRM cascade failure. The call is
// already durably recorded, so this is a warning, not an error.
func LogSyncFailure(externalEventID, callRecordID string, err error) {
	log.Warn().
		Err(err).
		Str("external_event_id", externalEventID).
		Str("call_record_id", callRecordID).
		Msg("CRM sync failed after call was recorded")
}

// LogEnrichment logs one enrichment run
func LogEnrichment(callID string, tags []string, summarySet, nextActionSet bool) {
	log.Info().
		Str("call_record_id", callID).
		Strs("tags", tags).
		Bool("summary_set", summarySet).
		Bool("next_action_set", nextActionSet).
		Msg("Call enriched")
}

// LogError logs an error with component context
func LogError(err error, requestID, component, operation string) {
	log.Error().
		Err(err).
		Str("request_id", requestID).
		Str("component", component).
		Str("operation", operation).
		Msg("Error occurred")
}
