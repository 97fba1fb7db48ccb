// Package logging constructs slog loggers with podium's console and JSON
// handlers and standardized attribute keys.
package logging
