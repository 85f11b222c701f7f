// Package restyutil traces resty requests and optionally captures the raw
// exchanges, which is how new portal layouts are collected as fixtures.
package restyutil

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type instrumentCtx struct {
	output    Output
	tracer    trace.Tracer
	idcounter *uint64
}

type attemptKeyType int

var attemptKey attemptKeyType

// attempt is one try of a request, resty runs the before request hooks again
// on every retry.
type attempt struct {
	parent context.Context
	span   trace.Span
	id     string
}

// InstrumentClient starts a span for every attempt made by client.
// `tracer` can be nil, it will default to a library name of "resty"
// `output` can also be nil, exchanges are then not captured
func InstrumentClient(client *resty.Client, tracer trace.Tracer, output Output) {
	if tracer == nil {
		tracer = otel.Tracer("resty")
	}

	var idcounter uint64
	i := instrumentCtx{output: output, tracer: tracer, idcounter: &idcounter}
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

func (i instrumentCtx) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	parent := req.Context()
	if prev, ok := parent.Value(attemptKey).(attempt); ok {
		prev.span.SetStatus(codes.Error, "retried")
		prev.span.End()
		parent = prev.parent
	}

	ctx, span := i.tracer.Start(
		parent,
		fmt.Sprintf("http %s", req.Method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.HTTPRequestMethodKey.String(req.Method)),
	)
	id := strconv.FormatUint(atomic.AddUint64(i.idcounter, 1), 10)
	req.SetContext(context.WithValue(ctx, attemptKey, attempt{parent: parent, span: span, id: id}))
	return nil
}

func (i instrumentCtx) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	a, ok := res.Request.Context().Value(attemptKey).(attempt)
	if !ok {
		return nil
	}
	res.Request.SetContext(context.WithValue(a.parent, attemptKey, attempt{parent: a.parent, span: noopSpan(), id: a.id}))
	defer a.span.End()

	a.span.SetAttributes(
		semconv.URLFull(res.Request.URL),
		semconv.HTTPResponseStatusCode(res.StatusCode()),
		attribute.Int("http.response.body.size", len(res.Body())),
	)
	if res.IsError() {
		a.span.SetStatus(codes.Error, res.Status())
	}

	if i.output != nil {
		name := fmt.Sprintf("%s-%s", a.id, res.Request.Method)
		if err := i.output.Write(name, FormatExchange(res)); err != nil {
			slog.WarnContext(a.parent, "failed to capture exchange", "id", name, "err", err)
		}
	}
	return nil
}

func (i instrumentCtx) onError(req *resty.Request, err error) {
	a, ok := req.Context().Value(attemptKey).(attempt)
	if !ok {
		return
	}
	a.span.SetAttributes(semconv.URLFull(req.URL))
	a.span.RecordError(err)
	a.span.SetStatus(codes.Error, "request failed")
	a.span.End()
}

func noopSpan() trace.Span {
	return trace.SpanFromContext(context.Background())
}
