package node

import (
	"context"
	"time"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
)

// Service is the client-facing API of a grid node.
type Service interface {
	// Get returns the value of key and whether it has one.
	Get(ctx context.Context, key string) (any, bool, error)
	// Put stores value under key and returns the previous value.
	Put(ctx context.Context, key string, value any) (any, error)
	// PutIfAbsent stores value when key has none; it returns the current value and whether the value was stored.
	PutIfAbsent(ctx context.Context, key string, value any) (any, bool, error)
	// Replace stores value when key has one; it returns the previous value and whether it was replaced.
	Replace(ctx context.Context, key string, value any) (any, bool, error)
	// ReplaceIfEquals stores value when the current value equals expected.
	ReplaceIfEquals(ctx context.Context, key string, expected, value any) (bool, error)
	// Remove deletes key and returns the previous value.
	Remove(ctx context.Context, key string) (any, error)
	// RemoveIfEquals deletes key when the current value equals expected.
	RemoveIfEquals(ctx context.Context, key string, expected any) (bool, error)
	// GetAll returns the entries of keys, in the order of keys.
	GetAll(ctx context.Context, keys ...string) ([]command.KeyValue, error)
	// Eval runs a registered read function where key is stored.
	Eval(ctx context.Context, key, function string, arg any) (any, error)
	// Update runs a registered write function on the primary owner of key and returns its result.
	Update(ctx context.Context, key, function string, arg any) (any, error)
	// EvalMany runs a registered read function over keys, in the order of keys.
	EvalMany(ctx context.Context, keys []string, function string, arg any) ([]any, error)
	// Group returns the entries of a key group, sorted by key.
	Group(ctx context.Context, group string) ([]*command.RemoteValue, error)
	// Clear removes every entry of the grid.
	Clear(ctx context.Context) error
	// Metrics returns the routing counters of the node.
	Metrics() Metrics
	// Stop leaves the grid.
	Stop(ctx context.Context) error
}

// Middleware decorates a Service.
type Middleware func(Service) Service

// ApplyMiddleware wraps svc with mw, the first middleware ending up outermost.
func ApplyMiddleware(svc Service, mw ...Middleware) Service {
	for i := len(mw) - 1; i >= 0; i-- {
		svc = mw[i](svc)
	}

	return svc
}

var _ Service = (*Node)(nil)

// Get implements Service.
func (n *Node) Get(ctx context.Context, key string) (any, bool, error) {
	defer n.latency.since(opGet, time.Now())

	if key == "" {
		return nil, false, sentinel.ErrInvalidKey
	}

	// nil values are never stored, so nil means absent
	v, err := n.Execute(ctx, command.NewGetKeyValue(key))
	if err != nil {
		return nil, false, err
	}

	return v, v != nil, nil
}

// Put implements Service.
func (n *Node) Put(ctx context.Context, key string, value any) (any, error) {
	res, err := n.write(ctx, command.NewPut(key, value))

	return res.Previous, err
}

// PutIfAbsent implements Service.
func (n *Node) PutIfAbsent(ctx context.Context, key string, value any) (any, bool, error) {
	res, err := n.write(ctx, command.NewPutIfAbsent(key, value))
	if err != nil {
		return nil, false, err
	}

	if res.Successful {
		return value, true, nil
	}

	return res.Previous, false, nil
}

// Replace implements Service.
func (n *Node) Replace(ctx context.Context, key string, value any) (any, bool, error) {
	res, err := n.write(ctx, command.NewReplace(key, value))

	return res.Previous, res.Successful, err
}

// ReplaceIfEquals implements Service.
func (n *Node) ReplaceIfEquals(ctx context.Context, key string, expected, value any) (bool, error) {
	res, err := n.write(ctx, command.NewReplaceIfEquals(key, expected, value))

	return res.Successful, err
}

// Remove implements Service.
func (n *Node) Remove(ctx context.Context, key string) (any, error) {
	res, err := n.write(ctx, command.NewRemove(key))

	return res.Previous, err
}

// RemoveIfEquals implements Service.
func (n *Node) RemoveIfEquals(ctx context.Context, key string, expected any) (bool, error) {
	res, err := n.write(ctx, command.NewRemoveIfEquals(key, expected))

	return res.Successful, err
}

func (n *Node) write(ctx context.Context, cmd *command.Write) (command.WriteResult, error) {
	defer n.latency.since(opWrite, time.Now())

	if cmd.Key == "" {
		return command.WriteResult{}, sentinel.ErrInvalidKey
	}

	if cmd.Value == nil && !cmd.WriteKind.Removes() {
		return command.WriteResult{}, sentinel.ErrNilValue
	}

	rv, err := n.Execute(ctx, cmd)
	if err != nil {
		return command.WriteResult{}, err
	}

	res, _ := rv.(command.WriteResult)
	if rv == nil {
		res.Successful = cmd.Successful
	}

	n.logger.Trace("write done", "key", cmd.Key, "kind", cmd.WriteKind, "invocation", cmd.InvocationID, "successful", res.Successful)

	return res, nil
}

// GetAll implements Service.
func (n *Node) GetAll(ctx context.Context, keys ...string) ([]command.KeyValue, error) {
	defer n.latency.since(opGetAll, time.Now())

	rv, err := n.Execute(ctx, command.NewGetAll(keys))
	if err != nil {
		return nil, err
	}

	kvs, ok := rv.([]command.KeyValue)
	if !ok || len(kvs) != len(keys) {
		return nil, sentinel.NewProtocolError("batch read returned %T for %d keys", rv, len(keys))
	}

	return kvs, nil
}

// Eval implements Service.
func (n *Node) Eval(ctx context.Context, key, function string, arg any) (any, error) {
	defer n.latency.since(opEval, time.Now())

	if key == "" {
		return nil, sentinel.ErrInvalidKey
	}

	return n.Execute(ctx, command.NewReadOnlyKey(key, function, arg))
}

// Update implements Service.
func (n *Node) Update(ctx context.Context, key, function string, arg any) (any, error) {
	defer n.latency.since(opWrite, time.Now())

	if key == "" {
		return nil, sentinel.ErrInvalidKey
	}

	cmd := command.NewReadWriteKey(key, function, arg)

	rv, err := n.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}

	res, ok := rv.(command.ReadWriteResult)
	if !ok {
		return nil, sentinel.NewProtocolError("functional write returned %T", rv)
	}

	n.logger.Trace("update done", "key", key, "function", function, "invocation", cmd.InvocationID, "successful", res.Successful)

	return res.Result, nil
}

// EvalMany implements Service.
func (n *Node) EvalMany(ctx context.Context, keys []string, function string, arg any) ([]any, error) {
	defer n.latency.since(opEval, time.Now())

	rv, err := n.Execute(ctx, command.NewReadOnlyMany(keys, function, arg))
	if err != nil {
		return nil, err
	}

	values, ok := rv.([]any)
	if !ok || len(values) != len(keys) {
		return nil, sentinel.NewProtocolError("batch function returned %T for %d keys", rv, len(keys))
	}

	return values, nil
}

// Group implements Service.
func (n *Node) Group(ctx context.Context, group string) ([]*command.RemoteValue, error) {
	defer n.latency.since(opGroup, time.Now())

	if group == "" {
		return nil, sentinel.ErrParamCannotBeEmpty
	}

	rv, err := n.Execute(ctx, command.NewGetKeysInGroup(group))
	if err != nil {
		return nil, err
	}

	entries, _ := rv.([]*command.RemoteValue)

	return entries, nil
}

// Clear implements Service.
func (n *Node) Clear(ctx context.Context) error {
	defer n.latency.since(opClear, time.Now())

	_, err := n.Execute(ctx, command.NewClear())

	return err
}
