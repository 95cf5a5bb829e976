package rpc

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/constants"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

// Dispatcher is the Manager used by grid nodes. It fans commands out over a Transport.
type Dispatcher struct {
	self      cluster.NodeID
	members   func() []cluster.NodeID
	transport Transport
	timeout   time.Duration
	stagger   time.Duration
	logger    hclog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds every remote invocation.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.timeout = d
		}
	}
}

// WithStaggerDelay sets the pause before a staggered call tries the next target.
func WithStaggerDelay(d time.Duration) DispatcherOption {
	return func(ds *Dispatcher) {
		if d >= 0 {
			ds.stagger = d
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l hclog.Logger) DispatcherOption {
	return func(ds *Dispatcher) {
		if l != nil {
			ds.logger = l
		}
	}
}

// NewDispatcher builds a dispatcher for self. members lists the members of the current topology.
func NewDispatcher(self cluster.NodeID, members func() []cluster.NodeID, transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		self:      self,
		members:   members,
		transport: transport,
		timeout:   constants.DefaultRemoteTimeout,
		stagger:   constants.DefaultStaggerDelay,
		logger:    hclog.NewNullLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Address implements Manager.
func (d *Dispatcher) Address() cluster.NodeID { return d.self }

// Members implements Manager.
func (d *Dispatcher) Members() []cluster.NodeID { return d.members() }

// InvokeRemotely implements Manager.
func (d *Dispatcher) InvokeRemotely(
	ctx context.Context,
	targets []cluster.NodeID,
	cmd command.Command,
	mode Mode,
) (*future.Future[Responses], error) {
	if d.transport == nil {
		return nil, ewrap.Wrap(sentinel.ErrCacheNotRunning, "no transport")
	}

	if ctx.Err() != nil {
		return nil, ewrap.Wrap(sentinel.ErrTimeoutOrCanceled, ctx.Err().Error())
	}

	targets = d.normalize(targets)
	if len(targets) == 0 {
		return future.Completed(Responses{}), nil
	}

	// peers never share the caller's command value
	cp := cmd.Copy()

	d.logger.Trace("invoke remotely", "kind", cp.Kind(), "targets", targets, "mode", mode, "topology", cp.Meta().TopologyID)

	switch mode {
	case Asynchronous:
		d.invokeAsync(ctx, targets, cp)

		return future.Completed(Responses{}), nil
	case Staggered:
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		out := newStaggeredCall(d, cctx, targets, cp).start()
		out.WhenComplete(func(Responses, error) { cancel() })

		return out, nil
	case Synchronous, SynchronousIgnoreLeavers:
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		out := d.invokeSync(cctx, targets, cp, mode == SynchronousIgnoreLeavers)
		out.WhenComplete(func(Responses, error) { cancel() })

		return out, nil
	}

	return nil, ewrap.Newf("unknown response mode %d", mode)
}

// normalize resolves a broadcast, drops self and duplicates.
func (d *Dispatcher) normalize(targets []cluster.NodeID) []cluster.NodeID {
	if targets == nil {
		targets = d.members()
	}

	out := make([]cluster.NodeID, 0, len(targets))
	for _, t := range targets {
		if t == d.self || t == "" || slices.Contains(out, t) {
			continue
		}

		out = append(out, t)
	}

	return out
}

func (d *Dispatcher) invokeSync(ctx context.Context, targets []cluster.NodeID, cmd command.Command, ignoreLeavers bool) *future.Future[Responses] {
	out := future.New[Responses]()

	var (
		mu        sync.Mutex
		responses = make(Responses, len(targets))
		remaining = len(targets)
	)

	for _, target := range targets {
		d.transport.Send(ctx, d.self, target, cmd).WhenComplete(func(resp Response, err error) {
			if err != nil {
				if !ignoreLeavers || !errors.Is(err, sentinel.ErrBackendNotFound) {
					out.Fail(ewrap.Wrapf(err, "invoke %s on %s", cmd.Kind(), target))

					return
				}

				resp = CacheNotFoundResponse{}
			}

			if ex, ok := resp.(ExceptionResponse); ok {
				out.Fail(&sentinel.RemoteError{Node: string(target), Cause: ex.Err})

				return
			}

			mu.Lock()
			responses[target] = resp
			remaining--
			done := remaining == 0
			mu.Unlock()

			if done {
				out.Complete(responses)
			}
		})
	}

	return out
}

func (d *Dispatcher) invokeAsync(ctx context.Context, targets []cluster.NodeID, cmd command.Command) {
	// fire and forget: the call outlives the caller's context
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	var remaining atomic.Int64
	remaining.Store(int64(len(targets)))

	for _, target := range targets {
		d.transport.Send(actx, d.self, target, cmd).WhenComplete(func(resp Response, err error) {
			if ex, ok := resp.(ExceptionResponse); ok {
				err = ex.Err
			}

			if err != nil {
				d.logger.Debug("async invocation failed", "kind", cmd.Kind(), "node", target, "error", err)
			}

			if remaining.Add(-1) == 0 {
				cancel()
			}
		})
	}
}

type staggeredCall struct {
	d       *Dispatcher
	ctx     context.Context //nolint:containedctx
	targets []cluster.NodeID
	cmd     command.Command
	out     *future.Future[Responses]

	mu        sync.Mutex
	next      int
	pending   int
	done      bool
	timer     *time.Timer
	responses Responses
}

func newStaggeredCall(d *Dispatcher, ctx context.Context, targets []cluster.NodeID, cmd command.Command) *staggeredCall {
	return &staggeredCall{
		d:         d,
		ctx:       ctx,
		targets:   targets,
		cmd:       cmd,
		out:       future.New[Responses](),
		responses: make(Responses, len(targets)),
	}
}

func (s *staggeredCall) start() *future.Future[Responses] {
	s.sendNext()

	return s.out
}

func (s *staggeredCall) sendNext() {
	s.mu.Lock()

	if s.done || s.next >= len(s.targets) {
		s.mu.Unlock()

		return
	}

	target := s.targets[s.next]
	s.next++
	s.pending++

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	if s.next < len(s.targets) {
		s.timer = time.AfterFunc(s.d.stagger, s.sendNext)
	}

	s.mu.Unlock()

	s.d.transport.Send(s.ctx, s.d.self, target, s.cmd).WhenComplete(func(resp Response, err error) {
		if err != nil {
			resp = ExceptionResponse{Err: err}
		}

		s.onReply(target, resp)
	})
}

func (s *staggeredCall) onReply(target cluster.NodeID, resp Response) {
	s.mu.Lock()

	if s.done {
		s.mu.Unlock()

		return
	}

	s.responses[target] = resp
	s.pending--

	switch {
	case resp.IsSuccessful(), s.pending == 0 && s.next >= len(s.targets):
		s.done = true

		if s.timer != nil {
			s.timer.Stop()
		}

		snapshot := maps.Clone(s.responses)
		s.mu.Unlock()

		s.out.Complete(snapshot)
	case s.next < len(s.targets):
		s.mu.Unlock()

		// a failed target does not wait for the stagger delay
		s.sendNext()
	default:
		s.mu.Unlock()
	}
}
