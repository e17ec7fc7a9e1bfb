// Package logger wraps zerolog behind a small chained-field interface, the
// shape every long-running component in this service logs through.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is a structured logger that accumulates fields via WithField and
// flushes them on the next level call. Each WithField returns a new Logger;
// the original is left untouched, so a base logger can be safely reused as
// the root of many per-request or per-message chains.
type Logger interface {
	WithField(key string, value interface{}) Logger
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type zlogger struct {
	ctx zerolog.Context
}

// New builds a console-rendered logger at the given level ("debug", "info",
// "warn", "error"; unrecognized values fall back to info).
func New(level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	base := zerolog.New(writer).Level(lvl).With().Timestamp()
	return &zlogger{ctx: base}
}

func (l *zlogger) WithField(key string, value interface{}) Logger {
	return &zlogger{ctx: l.ctx.Logger().With().Interface(key, value)}
}

func (l *zlogger) Debug(msg string) { l.ctx.Logger().Debug().Msg(msg) }
func (l *zlogger) Info(msg string)  { l.ctx.Logger().Info().Msg(msg) }
func (l *zlogger) Warn(msg string)  { l.ctx.Logger().Warn().Msg(msg) }
func (l *zlogger) Error(msg string) { l.ctx.Logger().Error().Msg(msg) }
