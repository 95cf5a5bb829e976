package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"
	"go.uber.org/goleak"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

// scriptedTransport answers every send with the reply scripted for the target.
type scriptedTransport struct {
	mu      sync.Mutex
	replies map[cluster.NodeID]func() *future.Future[Response]
	sent    []cluster.NodeID
}

func (s *scriptedTransport) Send(_ context.Context, _, target cluster.NodeID, _ command.Command) *future.Future[Response] {
	s.mu.Lock()
	s.sent = append(s.sent, target)
	reply, ok := s.replies[target]
	s.mu.Unlock()

	if !ok {
		return future.Failed[Response](sentinel.ErrBackendNotFound)
	}

	return reply()
}

func (s *scriptedTransport) sentTo() []cluster.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]cluster.NodeID(nil), s.sent...)
}

func answer(r Response) func() *future.Future[Response] {
	return func() *future.Future[Response] { return future.Completed(r) }
}

func members() []cluster.NodeID { return []cluster.NodeID{"A", "B", "C"} }

func TestSynchronousCollectsAllAndSkipsSelf(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": answer(SuccessfulResponse{Value: 1}),
		"C": answer(UnsuccessfulResponse{}),
	}}
	d := NewDispatcher("A", members, tr)

	fut, err := d.InvokeRemotely(context.Background(), nil, command.NewClear(), Synchronous)
	assert.NoError(t, err)

	resps, err := fut.Await(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, len(resps))
	assert.Equal(t, SuccessfulResponse{Value: 1}, resps["B"])
	assert.Equal(t, []cluster.NodeID{"B", "C"}, tr.sentTo())
}

func TestSynchronousFailsOnPeerException(t *testing.T) {
	defer goleak.VerifyNone(t)

	cause := errors.New("disk on fire")
	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": answer(ExceptionResponse{Err: cause}),
	}}
	d := NewDispatcher("A", members, tr)

	fut, err := d.InvokeRemotely(context.Background(), []cluster.NodeID{"B"}, command.NewClear(), Synchronous)
	assert.NoError(t, err)

	_, err = fut.Await(context.Background())
	assert.True(t, errors.Is(err, sentinel.ErrRemoteInvocation))
	assert.True(t, errors.Is(sentinel.UnwrapRemote(err), cause))
}

func TestIgnoreLeavers(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": answer(SuccessfulResponse{}),
	}}
	d := NewDispatcher("A", members, tr)

	fut, err := d.InvokeRemotely(context.Background(), nil, command.NewClear(), SynchronousIgnoreLeavers)
	assert.NoError(t, err)

	resps, err := fut.Await(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, CacheNotFoundResponse{}, resps["C"])

	fut, err = d.InvokeRemotely(context.Background(), nil, command.NewClear(), Synchronous)
	assert.NoError(t, err)

	_, err = fut.Await(context.Background())
	assert.True(t, errors.Is(err, sentinel.ErrBackendNotFound))
}

func TestStaggeredMovesOnAfterException(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": answer(ExceptionResponse{Err: errors.New("boom")}),
		"C": answer(SuccessfulResponse{Value: "v"}),
	}}
	// a long delay proves the second owner is tried because the first failed
	d := NewDispatcher("A", members, tr, WithStaggerDelay(time.Hour))

	fut, err := d.InvokeRemotely(context.Background(), []cluster.NodeID{"B", "C"}, command.NewGetKeyValue("k"), Staggered)
	assert.NoError(t, err)

	resps, err := fut.Await(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SuccessfulResponse{Value: "v"}, resps["C"])
	assert.False(t, resps["B"].IsSuccessful())
}

func TestStaggeredTriesNextAfterDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := future.New[Response]()
	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": func() *future.Future[Response] { return slow },
		"C": answer(SuccessfulResponse{Value: "fast"}),
	}}
	d := NewDispatcher("A", members, tr, WithStaggerDelay(5*time.Millisecond))

	fut, err := d.InvokeRemotely(context.Background(), []cluster.NodeID{"B", "C"}, command.NewGetKeyValue("k"), Staggered)
	assert.NoError(t, err)

	resps, err := fut.Await(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, SuccessfulResponse{Value: "fast"}, resps["C"])

	slow.Complete(SuccessfulResponse{Value: "late"})
}

func TestStaggeredWithoutSuccessReturnsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": answer(UnsuccessfulResponse{}),
		"C": answer(CacheNotFoundResponse{}),
	}}
	d := NewDispatcher("A", members, tr)

	fut, err := d.InvokeRemotely(context.Background(), []cluster.NodeID{"B", "C"}, command.NewGetKeyValue("k"), Staggered)
	assert.NoError(t, err)

	resps, err := fut.Await(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, len(resps))
}

func TestAsynchronousCompletesImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	pending := future.New[Response]()
	tr := &scriptedTransport{replies: map[cluster.NodeID]func() *future.Future[Response]{
		"B": func() *future.Future[Response] { return pending },
	}}
	d := NewDispatcher("A", members, tr)

	fut, err := d.InvokeRemotely(context.Background(), []cluster.NodeID{"B"}, command.NewPut("k", 1), Asynchronous)
	assert.NoError(t, err)
	assert.True(t, fut.IsDone())

	pending.Complete(SuccessfulResponse{})
}

func TestInvokeOnCanceledContextFailsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher("A", members, &scriptedTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.InvokeRemotely(ctx, nil, command.NewClear(), Synchronous)
	assert.True(t, errors.Is(err, sentinel.ErrTimeoutOrCanceled))
}

func TestOnlySelfIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := &scriptedTransport{}
	d := NewDispatcher("A", members, tr)

	fut, err := d.InvokeRemotely(context.Background(), []cluster.NodeID{"A"}, command.NewClear(), Synchronous)
	assert.NoError(t, err)

	resps, err := fut.Result()
	assert.NoError(t, err)
	assert.Equal(t, 0, len(resps))
	assert.Equal(t, 0, len(tr.sentTo()))
}
