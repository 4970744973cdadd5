// Package logging builds the structured logger shared by the engine and
// its frontends.
package logging

import "go.uber.org/zap"

// New builds a *zap.SugaredLogger. debug switches to zap's development
// config (console encoding, debug level, caller info); otherwise it
// builds a production JSON logger.
func New(debug bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests and
// callers that don't want logging wired up.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
