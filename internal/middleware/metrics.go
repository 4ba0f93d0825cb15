package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkeyd/internal/observability"
)

// Metrics returns a middleware that records request totals, durations,
// and the in-flight gauge. The matched route template is used as the
// route label so path parameters do not inflate cardinality; requests
// matching no route are recorded under a shared label.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		m.IncrementActiveRequests(method)
		c.Next()
		m.DecrementActiveRequests(method)

		m.RecordRequest(method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
