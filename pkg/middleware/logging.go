// Package middleware provides decorators for the client-facing node.Service:
// call logging, OpenTelemetry metrics and OpenTelemetry tracing.
package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/node"
)

// Logger describes a logging interface allowing to plug different loggers.
// hclog exposes one through StandardLogger; logrus and zap's sugared logger match it too.
type Logger interface {
	Printf(format string, v ...any)
}

// LoggingMiddleware logs every call and the time it took.
type LoggingMiddleware struct {
	next   node.Service
	logger Logger
}

// NewLoggingMiddleware returns a new LoggingMiddleware.
func NewLoggingMiddleware(next node.Service, logger Logger) node.Service {
	return &LoggingMiddleware{next: next, logger: logger}
}

// Logging adapts NewLoggingMiddleware to node.ApplyMiddleware.
func Logging(logger Logger) node.Middleware {
	return func(next node.Service) node.Service { return NewLoggingMiddleware(next, logger) }
}

func (mw LoggingMiddleware) took(method string, begin time.Time, err error) {
	if err != nil {
		mw.logger.Printf("method %s failed after %s: %v", method, time.Since(begin), err)

		return
	}

	mw.logger.Printf("method %s took: %s", method, time.Since(begin))
}

// Get implements node.Service.
func (mw LoggingMiddleware) Get(ctx context.Context, key string) (v any, ok bool, err error) {
	defer func(begin time.Time) { mw.took("Get", begin, err) }(time.Now())

	mw.logger.Printf("Get method called with key: %s", key)

	return mw.next.Get(ctx, key)
}

// Put implements node.Service.
func (mw LoggingMiddleware) Put(ctx context.Context, key string, value any) (prev any, err error) {
	defer func(begin time.Time) { mw.took("Put", begin, err) }(time.Now())

	mw.logger.Printf("Put method called with key: %s value: %v", key, value)

	return mw.next.Put(ctx, key, value)
}

// PutIfAbsent implements node.Service.
func (mw LoggingMiddleware) PutIfAbsent(ctx context.Context, key string, value any) (cur any, stored bool, err error) {
	defer func(begin time.Time) { mw.took("PutIfAbsent", begin, err) }(time.Now())

	mw.logger.Printf("PutIfAbsent method called with key: %s", key)

	return mw.next.PutIfAbsent(ctx, key, value)
}

// Replace implements node.Service.
func (mw LoggingMiddleware) Replace(ctx context.Context, key string, value any) (prev any, replaced bool, err error) {
	defer func(begin time.Time) { mw.took("Replace", begin, err) }(time.Now())

	mw.logger.Printf("Replace method called with key: %s", key)

	return mw.next.Replace(ctx, key, value)
}

// ReplaceIfEquals implements node.Service.
func (mw LoggingMiddleware) ReplaceIfEquals(ctx context.Context, key string, expected, value any) (ok bool, err error) {
	defer func(begin time.Time) { mw.took("ReplaceIfEquals", begin, err) }(time.Now())

	mw.logger.Printf("ReplaceIfEquals method called with key: %s", key)

	return mw.next.ReplaceIfEquals(ctx, key, expected, value)
}

// Remove implements node.Service.
func (mw LoggingMiddleware) Remove(ctx context.Context, key string) (prev any, err error) {
	defer func(begin time.Time) { mw.took("Remove", begin, err) }(time.Now())

	mw.logger.Printf("Remove method called with key: %s", key)

	return mw.next.Remove(ctx, key)
}

// RemoveIfEquals implements node.Service.
func (mw LoggingMiddleware) RemoveIfEquals(ctx context.Context, key string, expected any) (ok bool, err error) {
	defer func(begin time.Time) { mw.took("RemoveIfEquals", begin, err) }(time.Now())

	mw.logger.Printf("RemoveIfEquals method called with key: %s", key)

	return mw.next.RemoveIfEquals(ctx, key, expected)
}

// GetAll implements node.Service.
func (mw LoggingMiddleware) GetAll(ctx context.Context, keys ...string) (kvs []command.KeyValue, err error) {
	defer func(begin time.Time) { mw.took("GetAll", begin, err) }(time.Now())

	mw.logger.Printf("GetAll method called with keys: %v", keys)

	return mw.next.GetAll(ctx, keys...)
}

// Eval implements node.Service.
func (mw LoggingMiddleware) Eval(ctx context.Context, key, function string, arg any) (v any, err error) {
	defer func(begin time.Time) { mw.took("Eval", begin, err) }(time.Now())

	mw.logger.Printf("Eval method called with key: %s function: %s", key, function)

	return mw.next.Eval(ctx, key, function, arg)
}

// Update implements node.Service.
func (mw LoggingMiddleware) Update(ctx context.Context, key, function string, arg any) (v any, err error) {
	defer func(begin time.Time) { mw.took("Update", begin, err) }(time.Now())

	mw.logger.Printf("Update method called with key: %s function: %s", key, function)

	return mw.next.Update(ctx, key, function, arg)
}

// EvalMany implements node.Service.
func (mw LoggingMiddleware) EvalMany(ctx context.Context, keys []string, function string, arg any) (values []any, err error) {
	defer func(begin time.Time) { mw.took("EvalMany", begin, err) }(time.Now())

	mw.logger.Printf("EvalMany method called with keys: %v function: %s", keys, function)

	return mw.next.EvalMany(ctx, keys, function, arg)
}

// Group implements node.Service.
func (mw LoggingMiddleware) Group(ctx context.Context, group string) (entries []*command.RemoteValue, err error) {
	defer func(begin time.Time) { mw.took("Group", begin, err) }(time.Now())

	mw.logger.Printf("Group method called with group: %s", group)

	return mw.next.Group(ctx, group)
}

// Clear implements node.Service.
func (mw LoggingMiddleware) Clear(ctx context.Context) (err error) {
	defer func(begin time.Time) { mw.took("Clear", begin, err) }(time.Now())

	mw.logger.Printf("Clear method called")

	return mw.next.Clear(ctx)
}

// Metrics implements node.Service.
func (mw LoggingMiddleware) Metrics() node.Metrics { return mw.next.Metrics() }

// Stop implements node.Service.
func (mw LoggingMiddleware) Stop(ctx context.Context) (err error) {
	defer func(begin time.Time) { mw.took("Stop", begin, err) }(time.Now())

	mw.logger.Printf("Stop method called")

	return mw.next.Stop(ctx)
}
