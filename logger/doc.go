// Package logger provides structured logging for fixturekit using zerolog.
//
// Loggers are scoped per component and carry map fields:
//
//	log := logger.WithComponent("orchestrator")
//	log.Warn("fixture timed out", logger.Fields(logger.FieldRoute, "/users", logger.FieldBudget, 35))
//
// Level, format and output are read from LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT
// by NewFromEnv.
package logger
