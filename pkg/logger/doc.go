// Package logger provides structured logging for the crawler on top of zerolog.
//
// Components take a Logger in their constructors and derive child loggers with
// WithField/WithFields. Tests use NewTestLogger to assert on captured events.
package logger
