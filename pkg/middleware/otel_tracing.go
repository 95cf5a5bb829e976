package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/hypergrid/internal/telemetry/attrs"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/node"
)

// OTelTracingMiddleware wraps node.Service methods with OpenTelemetry spans.
type OTelTracingMiddleware struct {
	next   node.Service
	tracer trace.Tracer
	// static attributes applied to all spans
	commonAttrs []attribute.KeyValue
}

// OTelTracingOption allows configuring the tracing middleware.
type OTelTracingOption func(*OTelTracingMiddleware)

// WithCommonAttributes sets attributes applied to all spans.
func WithCommonAttributes(attributes ...attribute.KeyValue) OTelTracingOption {
	return func(m *OTelTracingMiddleware) { m.commonAttrs = append(m.commonAttrs, attributes...) }
}

// NewOTelTracingMiddleware creates a tracing middleware.
func NewOTelTracingMiddleware(next node.Service, tracer trace.Tracer, opts ...OTelTracingOption) node.Service {
	mw := &OTelTracingMiddleware{next: next, tracer: tracer}
	for _, o := range opts {
		o(mw)
	}

	return mw
}

// Get implements node.Service with tracing.
func (mw OTelTracingMiddleware) Get(ctx context.Context, key string) (any, bool, error) {
	ctx, span := mw.startSpan(ctx, "hypergrid.Get", attribute.Int(attrs.AttrKeyLength, len(key)))
	defer span.End()

	v, ok, err := mw.next.Get(ctx, key)
	span.SetAttributes(attribute.Bool("hit", ok))
	recordError(span, err)

	return v, ok, err
}

// Put implements node.Service with tracing.
func (mw OTelTracingMiddleware) Put(ctx context.Context, key string, value any) (any, error) {
	ctx, span := mw.startWrite(ctx, "hypergrid.Put", key, command.Put)
	defer span.End()

	prev, err := mw.next.Put(ctx, key, value)
	recordError(span, err)

	return prev, err
}

// PutIfAbsent implements node.Service with tracing.
func (mw OTelTracingMiddleware) PutIfAbsent(ctx context.Context, key string, value any) (any, bool, error) {
	ctx, span := mw.startWrite(ctx, "hypergrid.PutIfAbsent", key, command.PutIfAbsent)
	defer span.End()

	cur, stored, err := mw.next.PutIfAbsent(ctx, key, value)
	span.SetAttributes(attribute.Bool("stored", stored))
	recordError(span, err)

	return cur, stored, err
}

// Replace implements node.Service with tracing.
func (mw OTelTracingMiddleware) Replace(ctx context.Context, key string, value any) (any, bool, error) {
	ctx, span := mw.startWrite(ctx, "hypergrid.Replace", key, command.Replace)
	defer span.End()

	prev, replaced, err := mw.next.Replace(ctx, key, value)
	span.SetAttributes(attribute.Bool("replaced", replaced))
	recordError(span, err)

	return prev, replaced, err
}

// ReplaceIfEquals implements node.Service with tracing.
func (mw OTelTracingMiddleware) ReplaceIfEquals(ctx context.Context, key string, expected, value any) (bool, error) {
	ctx, span := mw.startWrite(ctx, "hypergrid.ReplaceIfEquals", key, command.ReplaceIfEquals)
	defer span.End()

	ok, err := mw.next.ReplaceIfEquals(ctx, key, expected, value)
	span.SetAttributes(attribute.Bool("replaced", ok))
	recordError(span, err)

	return ok, err
}

// Remove implements node.Service with tracing.
func (mw OTelTracingMiddleware) Remove(ctx context.Context, key string) (any, error) {
	ctx, span := mw.startWrite(ctx, "hypergrid.Remove", key, command.Remove)
	defer span.End()

	prev, err := mw.next.Remove(ctx, key)
	recordError(span, err)

	return prev, err
}

// RemoveIfEquals implements node.Service with tracing.
func (mw OTelTracingMiddleware) RemoveIfEquals(ctx context.Context, key string, expected any) (bool, error) {
	ctx, span := mw.startWrite(ctx, "hypergrid.RemoveIfEquals", key, command.RemoveIfEquals)
	defer span.End()

	ok, err := mw.next.RemoveIfEquals(ctx, key, expected)
	span.SetAttributes(attribute.Bool("removed", ok))
	recordError(span, err)

	return ok, err
}

// GetAll implements node.Service with tracing.
func (mw OTelTracingMiddleware) GetAll(ctx context.Context, keys ...string) ([]command.KeyValue, error) {
	ctx, span := mw.startSpan(ctx, "hypergrid.GetAll", attribute.Int(attrs.AttrKeysCount, len(keys)))
	defer span.End()

	kvs, err := mw.next.GetAll(ctx, keys...)
	span.SetAttributes(attribute.Int(attrs.AttrResultCount, len(kvs)))
	recordError(span, err)

	return kvs, err
}

// Eval implements node.Service with tracing.
func (mw OTelTracingMiddleware) Eval(ctx context.Context, key, function string, arg any) (any, error) {
	ctx, span := mw.startSpan(ctx, "hypergrid.Eval", attribute.Int(attrs.AttrKeyLength, len(key)), attribute.String("function", function))
	defer span.End()

	v, err := mw.next.Eval(ctx, key, function, arg)
	recordError(span, err)

	return v, err
}

// Update implements node.Service with tracing.
func (mw OTelTracingMiddleware) Update(ctx context.Context, key, function string, arg any) (any, error) {
	ctx, span := mw.startSpan(ctx, "hypergrid.Update", attribute.Int(attrs.AttrKeyLength, len(key)), attribute.String("function", function))
	defer span.End()

	v, err := mw.next.Update(ctx, key, function, arg)
	recordError(span, err)

	return v, err
}

// EvalMany implements node.Service with tracing.
func (mw OTelTracingMiddleware) EvalMany(ctx context.Context, keys []string, function string, arg any) ([]any, error) {
	ctx, span := mw.startSpan(ctx, "hypergrid.EvalMany", attribute.Int(attrs.AttrKeysCount, len(keys)), attribute.String("function", function))
	defer span.End()

	values, err := mw.next.EvalMany(ctx, keys, function, arg)
	recordError(span, err)

	return values, err
}

// Group implements node.Service with tracing.
func (mw OTelTracingMiddleware) Group(ctx context.Context, group string) ([]*command.RemoteValue, error) {
	ctx, span := mw.startSpan(ctx, "hypergrid.Group", attribute.String(attrs.AttrGroup, group))
	defer span.End()

	entries, err := mw.next.Group(ctx, group)
	span.SetAttributes(attribute.Int(attrs.AttrResultCount, len(entries)))
	recordError(span, err)

	return entries, err
}

// Clear implements node.Service with tracing.
func (mw OTelTracingMiddleware) Clear(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "hypergrid.Clear")
	defer span.End()

	err := mw.next.Clear(ctx)
	recordError(span, err)

	return err
}

// Metrics returns the node counters.
func (mw OTelTracingMiddleware) Metrics() node.Metrics { return mw.next.Metrics() }

// Stop stops the service with a span.
func (mw OTelTracingMiddleware) Stop(ctx context.Context) error {
	ctx, span := mw.startSpan(ctx, "hypergrid.Stop")
	defer span.End()

	return mw.next.Stop(ctx)
}

func (mw OTelTracingMiddleware) startWrite(ctx context.Context, name, key string, kind command.WriteKind) (context.Context, trace.Span) {
	return mw.startSpan(ctx, name, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.String(attrs.AttrWriteKind, string(kind)))
}

// startSpan starts a span with common and provided attributes.
func (mw OTelTracingMiddleware) startSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := mw.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	if len(mw.commonAttrs) > 0 {
		span.SetAttributes(mw.commonAttrs...)
	}

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	return ctx, span
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
