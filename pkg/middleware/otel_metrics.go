package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/hypergrid/internal/telemetry/attrs"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/node"
)

// OTelMetricsMiddleware emits OpenTelemetry metrics for service methods.
type OTelMetricsMiddleware struct {
	next  node.Service
	meter metric.Meter

	// instruments
	calls     metric.Int64Counter
	errors    metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricsMiddleware constructs a metrics middleware using the provided meter.
func NewOTelMetricsMiddleware(next node.Service, meter metric.Meter) (node.Service, error) {
	calls, err := meter.Int64Counter("hypergrid.calls")
	if err != nil {
		return nil, ewrap.Wrap(err, "create counter")
	}

	errs, err := meter.Int64Counter("hypergrid.errors")
	if err != nil {
		return nil, ewrap.Wrap(err, "create error counter")
	}

	durations, err := meter.Float64Histogram("hypergrid.duration.ms")
	if err != nil {
		return nil, ewrap.Wrap(err, "create histogram")
	}

	return &OTelMetricsMiddleware{next: next, meter: meter, calls: calls, errors: errs, durations: durations}, nil
}

// Get implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Get(ctx context.Context, key string) (any, bool, error) {
	start := time.Now()
	v, ok, err := mw.next.Get(ctx, key)
	mw.rec(ctx, "Get", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool("hit", ok))

	return v, ok, err
}

// Put implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Put(ctx context.Context, key string, value any) (any, error) {
	start := time.Now()
	prev, err := mw.next.Put(ctx, key, value)
	mw.rec(ctx, "Put", start, err, attribute.Int(attrs.AttrKeyLength, len(key)))

	return prev, err
}

// PutIfAbsent implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) PutIfAbsent(ctx context.Context, key string, value any) (any, bool, error) {
	start := time.Now()
	cur, stored, err := mw.next.PutIfAbsent(ctx, key, value)
	mw.rec(ctx, "PutIfAbsent", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool("stored", stored))

	return cur, stored, err
}

// Replace implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Replace(ctx context.Context, key string, value any) (any, bool, error) {
	start := time.Now()
	prev, replaced, err := mw.next.Replace(ctx, key, value)
	mw.rec(ctx, "Replace", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool("replaced", replaced))

	return prev, replaced, err
}

// ReplaceIfEquals implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) ReplaceIfEquals(ctx context.Context, key string, expected, value any) (bool, error) {
	start := time.Now()
	ok, err := mw.next.ReplaceIfEquals(ctx, key, expected, value)
	mw.rec(ctx, "ReplaceIfEquals", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool("replaced", ok))

	return ok, err
}

// Remove implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Remove(ctx context.Context, key string) (any, error) {
	start := time.Now()
	prev, err := mw.next.Remove(ctx, key)
	mw.rec(ctx, "Remove", start, err, attribute.Int(attrs.AttrKeyLength, len(key)))

	return prev, err
}

// RemoveIfEquals implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) RemoveIfEquals(ctx context.Context, key string, expected any) (bool, error) {
	start := time.Now()
	ok, err := mw.next.RemoveIfEquals(ctx, key, expected)
	mw.rec(ctx, "RemoveIfEquals", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool("removed", ok))

	return ok, err
}

// GetAll implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) GetAll(ctx context.Context, keys ...string) ([]command.KeyValue, error) {
	start := time.Now()
	kvs, err := mw.next.GetAll(ctx, keys...)
	mw.rec(ctx, "GetAll", start, err, attribute.Int(attrs.AttrKeysCount, len(keys)), attribute.Int(attrs.AttrResultCount, len(kvs)))

	return kvs, err
}

// Eval implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Eval(ctx context.Context, key, function string, arg any) (any, error) {
	start := time.Now()
	v, err := mw.next.Eval(ctx, key, function, arg)
	mw.rec(ctx, "Eval", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.String("function", function))

	return v, err
}

// Update implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Update(ctx context.Context, key, function string, arg any) (any, error) {
	start := time.Now()
	v, err := mw.next.Update(ctx, key, function, arg)
	mw.rec(ctx, "Update", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.String("function", function))

	return v, err
}

// EvalMany implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) EvalMany(ctx context.Context, keys []string, function string, arg any) ([]any, error) {
	start := time.Now()
	values, err := mw.next.EvalMany(ctx, keys, function, arg)
	mw.rec(ctx, "EvalMany", start, err, attribute.Int(attrs.AttrKeysCount, len(keys)), attribute.String("function", function))

	return values, err
}

// Group implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Group(ctx context.Context, group string) ([]*command.RemoteValue, error) {
	start := time.Now()
	entries, err := mw.next.Group(ctx, group)
	mw.rec(ctx, "Group", start, err, attribute.Int(attrs.AttrResultCount, len(entries)))

	return entries, err
}

// Clear implements node.Service with metrics.
func (mw *OTelMetricsMiddleware) Clear(ctx context.Context) error {
	start := time.Now()
	err := mw.next.Clear(ctx)
	mw.rec(ctx, "Clear", start, err)

	return err
}

// Metrics returns the node counters.
func (mw *OTelMetricsMiddleware) Metrics() node.Metrics { return mw.next.Metrics() }

// Stop stops the underlying service.
func (mw *OTelMetricsMiddleware) Stop(ctx context.Context) error { return mw.next.Stop(ctx) }

// rec records call count, errors and duration with attributes.
func (mw *OTelMetricsMiddleware) rec(ctx context.Context, method string, start time.Time, err error, attributes ...attribute.KeyValue) {
	base := []attribute.KeyValue{attribute.String("method", method)}
	if len(attributes) > 0 {
		base = append(base, attributes...)
	}

	mw.calls.Add(ctx, 1, metric.WithAttributes(base...))
	mw.durations.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(base...))

	if err != nil {
		mw.errors.Add(ctx, 1, metric.WithAttributes(base...))
	}
}
