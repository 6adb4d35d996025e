package logger

import (
	"fmt"
	"log"
	"sync/atomic"
)

type Logger struct {
	l         *log.Logger
	component string
	debug     *atomic.Bool
}

func New(l *log.Logger) *Logger {
	return &Logger{l: l, debug: &atomic.Bool{}}
}

// Named returns a logger sharing the same sink and debug switch that tags
// every line with the component name.
func (l *Logger) Named(component string) *Logger {
	if l.component != "" {
		component = l.component + "." + component
	}

	return &Logger{l: l.l, component: component, debug: l.debug}
}

func (l *Logger) SetDebug(enabled bool) {
	l.debug.Store(enabled)
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.print("Error", format, v...)
}

func (l *Logger) LogWarnf(format string, v ...any) {
	l.print("Warn", format, v...)
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.print("Info", format, v...)
}

func (l *Logger) LogDebugf(format string, v ...any) {
	if !l.debug.Load() {
		return
	}

	l.print("Debug", format, v...)
}

func (l *Logger) print(level, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)

	if l.component == "" {
		l.l.Printf("[%s]: %s\n", level, msg)

		return
	}

	l.l.Printf("[%s] %s: %s\n", level, l.component, msg)
}
