// Package logrus adapts a *logrus.Entry to the cache.Logger interface.
package logrus

import (
	"github.com/hexshard/objcache/cache"
	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Entry. The zero value is invalid; construct with
// Logger{E: entry}.
type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f cache.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f cache.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f cache.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f cache.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

var _ cache.Logger = Logger{}
