package ecs

import "github.com/rs/zerolog"

// logger returns l, or a no-op logger if l is nil. Every component
// that accepts an injected *zerolog.Logger funnels through this so a
// caller who doesn't care about logging never has to construct one.
func logger(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}
