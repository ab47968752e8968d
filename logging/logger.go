// Package logging defines the narrow logging contract shared by every
// package in this module, and a logrus-backed implementation of it.
package logging

import "github.com/sirupsen/logrus"

// Logger is the logging contract every package in this module depends
// on, rather than depending on logrus directly. It mirrors the leveled,
// printf-style surface the rest of the ecosystem (cron/job daemons in
// particular) has settled on.
type Logger interface {
	Criticalf(format string, args ...any)
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
	Noticef(format string, args ...any)
	Warningf(format string, args ...any)
}

// LogrusAdapter adapts a *logrus.Logger to Logger. Notice has no direct
// logrus equivalent and is mapped to Info.
type LogrusAdapter struct {
	Logger *logrus.Logger
}

// NewLogrusAdapter wraps l, or a sane default if l is nil.
func NewLogrusAdapter(l *logrus.Logger) *LogrusAdapter {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusAdapter{Logger: l}
}

func (a *LogrusAdapter) Criticalf(format string, args ...any) { a.Logger.Errorf(format, args...) }
func (a *LogrusAdapter) Debugf(format string, args ...any)    { a.Logger.Debugf(format, args...) }
func (a *LogrusAdapter) Errorf(format string, args ...any)    { a.Logger.Errorf(format, args...) }
func (a *LogrusAdapter) Noticef(format string, args ...any)   { a.Logger.Infof(format, args...) }
func (a *LogrusAdapter) Warningf(format string, args ...any)  { a.Logger.Warnf(format, args...) }

var _ Logger = (*LogrusAdapter)(nil)
