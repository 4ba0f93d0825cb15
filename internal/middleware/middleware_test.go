package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// captureLogger records log calls so tests can assert on them.
type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
}

func (l *captureLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *captureLogger) Debug(msg string, _ ...observability.Field) { l.record("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...observability.Field)  { l.record("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...observability.Field)  { l.record("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...observability.Field) { l.record("error", msg) }
func (l *captureLogger) Fatal(msg string, _ ...observability.Field) { l.record("fatal", msg) }

func (l *captureLogger) With(_ ...observability.Field) observability.Logger { return l }
func (l *captureLogger) WithContext(_ context.Context) observability.Logger { return l }
func (l *captureLogger) SetLevel(string) error                              { return nil }
func (l *captureLogger) Sync() error                                        { return nil }

// levels returns the recorded levels in order.
func (l *captureLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.level)
	}
	return out
}

// has reports whether a message was recorded at the level.
func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// serve runs one GET request through an engine built from the given
// middleware and a trivial handler.
func serve(path string, handler gin.HandlerFunc, mw ...gin.HandlerFunc) *httptest.ResponseRecorder {
	engine := gin.New()
	engine.Use(mw...)
	if handler == nil {
		handler = func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	}
	engine.GET("/ok", handler)
	engine.GET("/skip", handler)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}
