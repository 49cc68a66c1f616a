package cache

// Fields is a minimal structured field map for log lines.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around whatever
// logging stack the host application already uses (see log/zap and
// log/logrus for ready-made adapters). A nil Logger in Config defaults to
// NopLogger, so logging is opt-in and never required to exercise the cache.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards every log line. It is the default when Config.Logger
// is nil.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

var _ Logger = NopLogger{}
