package loggingx

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Zap is an adapter that routes log messages to a zap logger.
//
// Non-debug messages are logged at INFO level, debug messages at DEBUG
// level. Whether debug messages are produced at all is delegated to the zap
// logger's own level configuration.
type Zap struct {
	Target *zap.Logger
}

func (a *Zap) Log(f string, v ...interface{}) {
	a.Target.Info(fmt.Sprintf(f, v...))
}

func (a *Zap) LogString(s string) {
	a.Target.Info(s)
}

func (a *Zap) Debug(f string, v ...interface{}) {
	if a.IsDebug() {
		a.Target.Debug(fmt.Sprintf(f, v...))
	}
}

func (a *Zap) DebugString(s string) {
	a.Target.Debug(s)
}

func (a *Zap) IsDebug() bool {
	return a.Target.Core().Enabled(zapcore.DebugLevel)
}
