package mtapi

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Package-level structured logger, mirroring eventloop's
// SetStructuredLogger/getGlobalLogger global-configuration pattern
// (eventloop/logging.go), but backed directly by zerolog rather than the
// teacher's hand-rolled Logger interface — this module pulls in
// github.com/rs/zerolog the same way the monorepo's own logiface-zerolog
// submodule does, instead of reimplementing a parallel logging facade.
var pkgLogger struct {
	sync.RWMutex
	l zerolog.Logger
}

func init() {
	pkgLogger.l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// SetLogger replaces the package's structured logger. Components that
// previously logged through the default (stderr, info level) logger begin
// using l for all subsequent log statements.
func SetLogger(l zerolog.Logger) {
	pkgLogger.Lock()
	defer pkgLogger.Unlock()
	pkgLogger.l = l
}

// logger returns the currently configured structured logger.
func logger() *zerolog.Logger {
	pkgLogger.RLock()
	defer pkgLogger.RUnlock()
	l := pkgLogger.l
	return &l
}
