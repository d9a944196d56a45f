// Package logger provides structured logging functionality for the application.
//
// It builds a log/slog JSON logger with a configurable level, wraps its handler
// so card numbers and credentials never reach the output, and carries
// request-scoped loggers through context.Context.
package logger
