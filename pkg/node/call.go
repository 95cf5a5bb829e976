package node

import (
	"context"
	"slices"
	"strings"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/container"
	"github.com/hyp3rd/hypergrid/pkg/future"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
	"github.com/hyp3rd/hypergrid/pkg/persistence"
)

// callStage executes commands against the entries of the invocation context.
type callStage struct {
	node *Node
}

func (s *callStage) Handle(ctx context.Context, ictx *invocation.Context, cmd command.Command) *future.Future[any] {
	v, err := s.execute(ctx, ictx, cmd)

	f := future.New[any]()
	f.Resolve(v, err)

	return f
}

func (s *callStage) execute(ctx context.Context, ictx *invocation.Context, cmd command.Command) (any, error) {
	switch c := cmd.(type) {
	case *command.GetKeyValue:
		v, _ := lookup(ictx, c.Key)

		return v, nil
	case *command.ReadOnlyKey:
		return apply(ictx, c.Key, c.Function, c.Arg)
	case *command.Write:
		return applyWrite(ictx, c)
	case *command.ReadWriteKey:
		return applyReadWrite(ictx, c)
	case *command.GetAll:
		out := make([]command.KeyValue, len(c.Keys))
		for i, key := range c.Keys {
			v, found := lookup(ictx, key)
			out[i] = command.KeyValue{Key: key, Value: v, Found: found}
		}

		return out, nil
	case *command.ReadOnlyMany:
		out := make([]any, len(c.Keys))

		for i, key := range c.Keys {
			v, err := apply(ictx, key, c.Function, c.Arg)
			if err != nil {
				return nil, err
			}

			out[i] = v
		}

		return out, nil
	case *command.GetKeysInGroup:
		return s.groupEntries(ictx, c.Group), nil
	case *command.Clear:
		s.node.container.Clear()

		if s.node.writer != nil && ictx.IsOriginLocal() && !c.Flags.Has(command.CacheModeLocal) {
			err := s.node.writer.Clear(ctx)
			if err != nil {
				return nil, ewrap.Wrap(err, "clearing backing store")
			}
		}

		return nil, nil
	}

	return nil, ewrap.Wrapf(sentinel.ErrUnknownCommand, "%s", cmd.Kind())
}

func (s *callStage) groupEntries(ictx *invocation.Context, group string) []*command.RemoteValue {
	topo := s.node.membership.Topology()
	out := []*command.RemoteValue{}

	for _, e := range ictx.Entries() {
		if e.Found() && topo.InGroup(e.Key, group) {
			out = append(out, &command.RemoteValue{Key: e.Key, Value: e.Value, Version: e.Version})
		}
	}

	slices.SortFunc(out, func(a, b *command.RemoteValue) int { return strings.Compare(a.Key, b.Key) })

	return out
}

func lookup(ictx *invocation.Context, key string) (any, bool) {
	e := ictx.LookupEntry(key)
	if e == nil || !e.Found() {
		return nil, false
	}

	return e.Value, true
}

func apply(ictx *invocation.Context, key, function string, arg any) (any, error) {
	fn, err := command.LookupFunction(function)
	if err != nil {
		return nil, err
	}

	v, found := lookup(ictx, key)

	return fn(key, v, found, arg)
}

// applyWrite evaluates the matcher of c against the wrapped entry and mutates it.
func applyWrite(ictx *invocation.Context, c *command.Write) (any, error) {
	e := ictx.LookupEntry(c.Key)
	if e == nil {
		return nil, sentinel.NewProtocolError("write on %q reached execution without an entry", c.Key)
	}

	prev, found := lookup(ictx, c.Key)

	if !c.Matcher.Matches(prev, found, c.Expected, c.Value) {
		c.Successful = false

		return command.WriteResult{Previous: prev, Successful: false}, nil
	}

	if c.WriteKind.Removes() {
		e.Remove()
	} else {
		e.SetValue(c.Value)
	}

	c.Successful = true

	return command.WriteResult{Previous: prev, Successful: true}, nil
}

// applyReadWrite runs the write function of c over the wrapped entry and records the
// outcome in c for the backups.
func applyReadWrite(ictx *invocation.Context, c *command.ReadWriteKey) (any, error) {
	if c.Matcher == command.MatchNever {
		c.Successful = false

		return command.ReadWriteResult{}, nil
	}

	e := ictx.LookupEntry(c.Key)
	if e == nil {
		return nil, sentinel.NewProtocolError("functional write on %q reached execution without an entry", c.Key)
	}

	fn, err := command.LookupWriteFunction(c.Function)
	if err != nil {
		return nil, err
	}

	prev, found := lookup(ictx, c.Key)

	m, err := fn(c.Key, prev, found, c.Arg)
	if err != nil {
		return nil, err
	}

	switch {
	case m.Keep:
		c.Successful = false

		return command.ReadWriteResult{Result: m.Result}, nil
	case m.Remove:
		c.WriteKind, c.Value = command.Remove, nil
		e.Remove()
	case m.Value == nil:
		return nil, sentinel.ErrNilValue
	default:
		c.WriteKind, c.Value = command.Put, m.Value
		e.SetValue(m.Value)
	}

	c.Successful = true

	return command.ReadWriteResult{Result: m.Result, Successful: true}, nil
}

// commit stores the changed entry of a write in the container; the primary also writes it through.
func (n *Node) commit(ctx context.Context, ictx *invocation.Context, c *command.Write, writeThrough bool) error {
	e := ictx.LookupEntry(c.Key)
	if e == nil || !e.Changed {
		return nil
	}

	origin := string(n.id)
	if !ictx.IsOriginLocal() {
		origin = string(ictx.Origin())
	}

	if e.Removed {
		n.container.Remove(c.Key)

		if writeThrough && n.writer != nil {
			err := n.writer.Delete(ctx, c.Key)
			if err != nil {
				return ewrap.Wrap(err, "deleting from backing store")
			}
		}

		return nil
	}

	it := n.container.Put(c.Key, e.Value, origin)

	if writeThrough && n.writer != nil {
		err := n.writer.Store(ctx, &persistence.Record{Key: it.Key, Value: it.Value, Version: it.Version})
		if err != nil {
			return ewrap.Wrap(err, "writing to backing store")
		}
	}

	return nil
}

// loadMissing fills an empty entry from the backing store.
func (n *Node) loadMissing(ctx context.Context, ictx *invocation.Context, key string) {
	if n.loader == nil {
		return
	}

	if e := ictx.LookupEntry(key); e != nil && !e.Null {
		return
	}

	rec, found, err := n.loader.Load(ctx, key)
	if err != nil {
		n.logger.Warn("backing store load failed", "key", key, "error", err)

		return
	}

	if !found {
		return
	}

	n.metrics.storeLoads.Add(1)
	n.container.Restore(&container.Item{Key: key, Value: rec.Value, Version: rec.Version, Origin: string(n.id)})
	invocation.ExternalEntryFactory{}.WrapExternalEntry(ictx, key, invocation.NewEntry(key, rec.Value, rec.Version), true, true)
}
