package log

import (
	"fmt"

	"github.com/rs/zerolog"
)

// TemporalAdapter bridges zerolog into the workflow engine's keyval
// logging interface
type TemporalAdapter struct {
	logger *zerolog.Logger
}

// NewTemporalAdapter wraps a zerolog logger for the engine client
func NewTemporalAdapter(logger *zerolog.Logger) *TemporalAdapter {
	return &TemporalAdapter{logger: logger}
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.emit(a.logger.Debug(), msg, keyvals)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.emit(a.logger.Info(), msg, keyvals)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.emit(a.logger.Warn(), msg, keyvals)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.emit(a.logger.Error(), msg, keyvals)
}

func (a *TemporalAdapter) emit(event *zerolog.Event, msg string, keyvals []interface{}) {
	for i := 0; i+1 < len(keyvals); i += 2 {
		event = event.Interface(fmt.Sprint(keyvals[i]), keyvals[i+1])
	}
	event.Msg(msg)
}
