package rpc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

const (
	invokePath  = "/internal/grid/invoke"
	healthPath  = "/health"
	metricsPath = "/internal/grid/metrics"
	membersPath = "/internal/grid/members"

	// internal status code threshold for error classification.
	statusThreshold = 300

	errMsgNewRequest = "new request"
	errMsgDoRequest  = "do request"
)

// HTTPTransport implements Transport over HTTP JSON.
type HTTPTransport struct {
	client    *http.Client
	baseURLFn func(id cluster.NodeID) (string, bool) // resolves node id -> base URL (scheme+host)
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(timeout time.Duration, resolver func(cluster.NodeID) (string, bool)) *HTTPTransport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return &HTTPTransport{
		client:    &http.Client{Timeout: timeout},
		baseURLFn: resolver,
	}
}

// Send implements Transport. The request body is encoded before Send returns.
func (t *HTTPTransport) Send(ctx context.Context, origin, target cluster.NodeID, cmd command.Command) *future.Future[Response] {
	base, ok := t.baseURLFn(target)
	if !ok {
		return future.Failed[Response](ewrap.Wrap(sentinel.ErrBackendNotFound, string(target)))
	}

	payload, err := encodeRequest(string(origin), cmd)
	if err != nil {
		return future.Failed[Response](err)
	}

	out := future.New[Response]()

	go func() {
		out.Resolve(t.post(ctx, base+invokePath, cmd.Kind(), payload))
	}()

	return out
}

func (t *HTTPTransport) post(ctx context.Context, url string, kind command.Kind, payload []byte) (Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, ewrap.Wrap(err, errMsgNewRequest)
	}

	hreq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ewrap.Wrap(sentinel.ErrTimeoutOrCanceled, err.Error())
		}

		return nil, ewrap.Wrap(err, errMsgDoRequest)
	}

	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // best-effort
	}()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ewrap.Wrapf(sentinel.ErrBackendNotFound, "status %d", resp.StatusCode)
	}

	if resp.StatusCode >= statusThreshold {
		body, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return nil, ewrap.Wrap(rerr, "read error body")
		}

		return nil, ewrap.Newf("invoke status %d body %s", resp.StatusCode, string(body))
	}

	var body httpInvokeResponse

	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return nil, ewrap.Wrap(err, "decode body")
	}

	return decodeResponse(kind, &body)
}

// Health checks the health endpoint of a remote node.
func (t *HTTPTransport) Health(ctx context.Context, id cluster.NodeID) error {
	base, ok := t.baseURLFn(id)
	if !ok {
		return sentinel.ErrBackendNotFound
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+healthPath, nil)
	if err != nil {
		return ewrap.Wrap(err, errMsgNewRequest)
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return ewrap.Wrap(err, errMsgDoRequest)
	}

	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // best-effort

	if resp.StatusCode == http.StatusNotFound {
		return sentinel.ErrBackendNotFound
	}

	if resp.StatusCode >= statusThreshold {
		return ewrap.Newf("health status %d", resp.StatusCode)
	}

	return nil
}

// Members fetches the member list a remote node currently routes against.
func (t *HTTPTransport) Members(ctx context.Context, id cluster.NodeID) ([]cluster.Member, error) {
	base, ok := t.baseURLFn(id)
	if !ok {
		return nil, sentinel.ErrBackendNotFound
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+membersPath, nil)
	if err != nil {
		return nil, ewrap.Wrap(err, errMsgNewRequest)
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, ewrap.Wrap(err, errMsgDoRequest)
	}

	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // best-effort

	if resp.StatusCode >= statusThreshold {
		return nil, ewrap.Newf("members status %d", resp.StatusCode)
	}

	var members []cluster.Member

	err = json.NewDecoder(resp.Body).Decode(&members)
	if err != nil {
		return nil, ewrap.Wrap(err, "decode members")
	}

	return members, nil
}
