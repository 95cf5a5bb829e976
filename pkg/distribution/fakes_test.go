package distribution

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

type staticTopology struct {
	topo          *cluster.LocalizedTopology
	stateTransfer int
}

func (s *staticTopology) CacheTopology() *cluster.LocalizedTopology { return s.topo }
func (s *staticTopology) StateTransferTopologyID() int             { return s.stateTransfer }

func newTopology(id int, self cluster.NodeID, replication int, members ...cluster.NodeID) *staticTopology {
	topo := cluster.NewTopology(id, members, cluster.HashTagGrouper, cluster.WithReplication(replication))

	return &staticTopology{topo: topo.Localize(self), stateTransfer: id}
}

// keyWhere returns the first generated key whose ownership satisfies pred.
func keyWhere(t *testing.T, topo *cluster.LocalizedTopology, pred func(cluster.DistributionInfo) bool) string {
	t.Helper()

	for n := range 10000 {
		key := fmt.Sprintf("key-%d", n)
		if pred(topo.Distribution(key)) {
			return key
		}
	}

	t.Fatalf("no key matches")

	return ""
}

type rpcCall struct {
	targets []cluster.NodeID
	cmd     command.Command
	mode    rpc.Mode
}

// scriptedRPC records every call and answers it with reply.
type scriptedRPC struct {
	self  cluster.NodeID
	reply func(call rpcCall) (rpc.Responses, error)

	mu    sync.Mutex
	calls []rpcCall
}

func (s *scriptedRPC) Address() cluster.NodeID { return s.self }

func (*scriptedRPC) Members() []cluster.NodeID { return nil }

func (s *scriptedRPC) InvokeRemotely(
	_ context.Context,
	targets []cluster.NodeID,
	cmd command.Command,
	mode rpc.Mode,
) (*future.Future[rpc.Responses], error) {
	call := rpcCall{targets: slices.Clone(targets), cmd: cmd.Copy(), mode: mode}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	fut := future.New[rpc.Responses]()

	if s.reply == nil {
		fut.Complete(rpc.Responses{})

		return fut, nil
	}

	go func() { fut.Resolve(s.reply(call)) }()

	return fut, nil
}

func (s *scriptedRPC) recorded() []rpcCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.calls)
}

// localExecutor answers commands from the entries in the invocation context.
type localExecutor struct {
	mu   sync.Mutex
	seen []command.Command
}

func (l *localExecutor) Handle(_ context.Context, ictx *invocation.Context, cmd command.Command) *future.Future[any] {
	l.mu.Lock()
	l.seen = append(l.seen, cmd)
	l.mu.Unlock()

	value := func(key string) (any, bool) {
		e := ictx.LookupEntry(key)
		if e == nil || !e.Found() {
			return nil, false
		}

		return e.Value, true
	}

	switch c := cmd.(type) {
	case *command.GetKeyValue:
		v, _ := value(c.Key)

		return future.Completed(v)
	case *command.ReadOnlyKey:
		_, ok := value(c.Key)

		return future.Completed[any](ok)
	case *command.Write:
		prev, _ := value(c.Key)
		ictx.LookupEntry(c.Key).SetValue(c.Value)

		return future.Completed[any](command.WriteResult{Previous: prev, Successful: c.Successful})
	case *command.ReadWriteKey:
		if c.Matcher == command.MatchNever {
			c.Successful = false

			return future.Completed[any](command.ReadWriteResult{})
		}

		fn, err := command.LookupWriteFunction(c.Function)
		if err != nil {
			return future.Failed[any](err)
		}

		prev, found := value(c.Key)

		m, err := fn(c.Key, prev, found, c.Arg)
		if err != nil {
			return future.Failed[any](err)
		}

		c.Value = m.Value
		ictx.LookupEntry(c.Key).SetValue(m.Value)

		return future.Completed[any](command.ReadWriteResult{Result: m.Result, Successful: true})
	case *command.GetAll:
		out := make([]command.KeyValue, len(c.Keys))
		for j, key := range c.Keys {
			v, ok := value(key)
			out[j] = command.KeyValue{Key: key, Value: v, Found: ok}
		}

		return future.Completed[any](out)
	case *command.ReadOnlyMany:
		out := make([]any, len(c.Keys))
		for j, key := range c.Keys {
			out[j], _ = value(key)
		}

		return future.Completed[any](out)
	}

	return future.Completed[any](nil)
}

func (l *localExecutor) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.seen)
}

type countingListener struct {
	mu       sync.Mutex
	found    []string
	notFound []string
}

func (c *countingListener) RemoteValueFound(rv *command.RemoteValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.found = append(c.found, rv.Key)
}

func (c *countingListener) RemoteValueNotFound(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.notFound = append(c.notFound, key)
}

func await(t *testing.T, f *future.Future[any]) (any, error) {
	t.Helper()

	return f.Await(context.Background())
}
