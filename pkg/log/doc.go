// Package log provides the tracker's structured logging, a thin wrapper
// around zerolog with component-scoped child loggers.
package log
