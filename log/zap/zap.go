// Package zap adapts a *zap.Logger to the cache.Logger interface.
package zap

import (
	"github.com/hexshard/objcache/cache"
	"go.uber.org/zap"
)

// Logger wraps a *zap.Logger. The zero value is invalid; construct with
// Logger{L: z}.
type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f cache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f cache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f cache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f cache.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f cache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}

var _ cache.Logger = Logger{}
