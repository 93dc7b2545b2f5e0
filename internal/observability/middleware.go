package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware traces and counts local API requests
func HTTPMiddleware(metrics *Metrics) gin.HandlerFunc {
	tracer := otel.Tracer(TracerName)

	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				AttrRequestMethod.String(c.Request.Method),
				AttrRequestPath.String(route),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(AttrHTTPStatusCode.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		for _, err := range c.Errors {
			span.RecordError(err.Err)
		}

		metrics.RecordHTTPRequest(c.Request.Method, route, status, time.Since(start))
	}
}
