// Package log provides structured logging for Stackdock built on zerolog.
//
// Call Init once at startup, then derive child loggers per concern:
//
//	logger := log.WithComponent("discovery")
//	logger.Info().Int("projects", n).Msg("cache refreshed")
//
// WithProject and WithOperation attach the fields used to correlate engine
// activity with audit records and websocket notifications.
package log
