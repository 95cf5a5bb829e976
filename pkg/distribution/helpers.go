package distribution

import (
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/invocation"
)

// GetAllHelper routes GetAll batches. Remote owners are asked for their stored entries,
// which are registered in the invocation context before the local node answers.
type GetAllHelper struct {
	entries invocation.EntryFactory
}

func (*GetAllHelper) Keys(cmd *command.GetAll) []string { return cmd.Keys }

func (*GetAllHelper) CopyForLocal(cmd *command.GetAll, keys []string) *command.GetAll {
	return cmd.WithKeys(keys)
}

func (*GetAllHelper) CopyForRemote(cmd *command.GetAll, keys []string) command.Command {
	return &command.ClusteredGetAll{Header: cmd.Header, Keys: keys}
}

func (*GetAllHelper) UnwrapLocalResult(rv any, keys []string) ([]any, error) {
	kvs, ok := rv.([]command.KeyValue)
	if !ok || len(kvs) != len(keys) {
		return nil, sentinel.NewProtocolError("local batch read returned %T for %d keys", rv, len(keys))
	}

	values := make([]any, len(kvs))
	for j, kv := range kvs {
		values[j] = kv
	}

	return values, nil
}

func (h *GetAllHelper) UnwrapRemoteResult(ictx *invocation.Context, keys []string, rv any) ([]any, error) {
	remote, ok := rv.([]*command.RemoteValue)
	if !ok || len(remote) != len(keys) {
		return nil, sentinel.NewProtocolError("owner returned %T for %d keys", rv, len(keys))
	}

	values := make([]any, len(keys))

	for j, key := range keys {
		kv := command.KeyValue{Key: key}

		if remote[j] == nil {
			h.entries.WrapExternalEntry(ictx, key, nil, true, false)
		} else {
			h.entries.WrapExternalEntry(ictx, key, invocation.NewEntry(key, remote[j].Value, remote[j].Version), true, false)
			kv.Value, kv.Found = remote[j].Value, true
		}

		values[j] = kv
	}

	return values, nil
}

func (*GetAllHelper) MergeUnderLock() bool { return true }

// WrapResultOnNonOrigin answers with the stored entries, versions included.
func (*GetAllHelper) WrapResultOnNonOrigin(ictx *invocation.Context, keys []string, _ any) (any, error) {
	out := make([]*command.RemoteValue, len(keys))

	for j, key := range keys {
		if e := ictx.LookupEntry(key); e != nil && e.Found() {
			out[j] = &command.RemoteValue{Key: key, Value: e.Value, Version: e.Version}
		}
	}

	return out, nil
}

func (*GetAllHelper) TransformResult(values []any) (any, error) {
	out := make([]command.KeyValue, len(values))

	for j, v := range values {
		kv, ok := v.(command.KeyValue)
		if !ok {
			return nil, sentinel.NewProtocolError("batch slot %d holds %T", j, v)
		}

		out[j] = kv
	}

	return out, nil
}

// ReadOnlyManyHelper routes ReadOnlyMany batches. Each owner runs the function on its
// share and only the results travel back.
type ReadOnlyManyHelper struct{}

func (*ReadOnlyManyHelper) Keys(cmd *command.ReadOnlyMany) []string { return cmd.Keys }

func (*ReadOnlyManyHelper) CopyForLocal(cmd *command.ReadOnlyMany, keys []string) *command.ReadOnlyMany {
	return cmd.WithKeys(keys)
}

func (*ReadOnlyManyHelper) CopyForRemote(cmd *command.ReadOnlyMany, keys []string) command.Command {
	return cmd.WithKeys(keys)
}

func (*ReadOnlyManyHelper) UnwrapLocalResult(rv any, keys []string) ([]any, error) {
	return functionalValues(rv, keys)
}

func (*ReadOnlyManyHelper) UnwrapRemoteResult(_ *invocation.Context, keys []string, rv any) ([]any, error) {
	return functionalValues(rv, keys)
}

func (*ReadOnlyManyHelper) MergeUnderLock() bool { return false }

func (*ReadOnlyManyHelper) WrapResultOnNonOrigin(_ *invocation.Context, _ []string, rv any) (any, error) {
	return rv, nil
}

func (*ReadOnlyManyHelper) TransformResult(values []any) (any, error) {
	out := make([]any, len(values))
	copy(out, values)

	return out, nil
}

func functionalValues(rv any, keys []string) ([]any, error) {
	values, ok := rv.([]any)
	if !ok || len(values) != len(keys) {
		return nil, sentinel.NewProtocolError("batch function returned %T for %d keys", rv, len(keys))
	}

	return values, nil
}
