package client

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rebase-analytics/ibreport/pkg/client"

// instrument starts a span before each request and ends it on response or error.
func instrument(rc *resty.Client, service string) {
	tracer := otel.Tracer(tracerName)

	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("%s %s", service, req.Method),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("ibreport.service", service),
				attribute.String("http.method", req.Method),
			),
		)
		req.SetContext(ctx)
		return nil
	})

	rc.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		span := trace.SpanFromContext(res.Request.Context())
		defer span.End()

		span.SetAttributes(
			attribute.Int("http.status_code", res.StatusCode()),
			attribute.Int("http.response_size", len(res.Body())),
		)
		if res.Request.RawRequest != nil {
			span.SetAttributes(attribute.String("http.url", res.Request.RawRequest.URL.Redacted()))
		}
		if res.StatusCode() >= 400 {
			span.SetStatus(codes.Error, res.Status())
		}
		return nil
	})

	rc.OnError(func(req *resty.Request, err error) {
		span := trace.SpanFromContext(req.Context())
		defer span.End()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	})
}
