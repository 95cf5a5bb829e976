package rpc

import (
	"context"
	"net"
	"time"

	"github.com/goccy/go-json"
	fiber "github.com/gofiber/fiber/v3"
	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
)

const (
	httpReadTimeout  = 5 * time.Second
	httpWriteTimeout = 5 * time.Second
)

// HTTPServer exposes a Handler to other nodes.
type HTTPServer struct {
	app     *fiber.App
	ln      net.Listener
	addr    string
	timeout time.Duration
	metrics func() any
	members func() []cluster.Member
}

// HTTPServerOption configures an HTTPServer.
type HTTPServerOption func(*HTTPServer)

// WithMetricsSource publishes the value returned by fn on the metrics endpoint.
func WithMetricsSource(fn func() any) HTTPServerOption {
	return func(s *HTTPServer) { s.metrics = fn }
}

// WithMembersSource publishes the members returned by fn on the members endpoint.
func WithMembersSource(fn func() []cluster.Member) HTTPServerOption {
	return func(s *HTTPServer) { s.members = fn }
}

// WithHandlerTimeout bounds the execution of one received command.
func WithHandlerTimeout(d time.Duration) HTTPServerOption {
	return func(s *HTTPServer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewHTTPServer builds a server listening on addr once started.
func NewHTTPServer(addr string, opts ...HTTPServerOption) *HTTPServer {
	app := fiber.New(fiber.Config{
		ReadTimeout:  httpReadTimeout,
		WriteTimeout: httpWriteTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	s := &HTTPServer{app: app, addr: addr, timeout: httpWriteTimeout}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start mounts the routes and serves in the background.
func (s *HTTPServer) Start(ctx context.Context, h Handler) error {
	// POST /internal/grid/invoke
	// body: httpInvokeRequest
	s.app.Post(invokePath, func(fctx fiber.Ctx) error {
		origin, cmd, err := decodeRequest(fctx.Body())
		if err != nil {
			return fctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		hctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		resp, err := h.HandleRemote(hctx, cluster.NodeID(origin), cmd).Await(hctx)
		if err != nil {
			resp = ExceptionResponse{Err: err}
		}

		body, err := encodeResponse(resp)
		if err != nil {
			return fctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		return fctx.JSON(body)
	})

	s.app.Get(healthPath, func(fctx fiber.Ctx) error {
		return fctx.SendString("ok")
	})

	s.app.Get(metricsPath, func(fctx fiber.Ctx) error {
		if s.metrics == nil {
			return fctx.JSON(fiber.Map{})
		}

		return fctx.JSON(s.metrics())
	})

	s.app.Get(membersPath, func(fctx fiber.Ctx) error {
		if s.members == nil {
			return fctx.JSON([]cluster.Member{})
		}

		return fctx.JSON(s.members())
	})

	lc := net.ListenConfig{}

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return ewrap.Wrap(err, "grid http listen")
	}

	s.ln = ln

	go func() {
		err := s.app.Listener(ln)
		if err != nil {
			return
		}
	}()

	return nil
}

// Addr returns the bound address, empty before Start.
func (s *HTTPServer) Addr() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

// Stop shuts the server down.
func (s *HTTPServer) Stop(ctx context.Context) error {
	if s == nil || s.ln == nil {
		return nil
	}

	ch := make(chan error, 1)

	go func() { ch <- s.app.Shutdown() }()

	select {
	case <-ctx.Done():
		return sentinel.ErrHTTPShutdownTimeout
	case err := <-ch:
		return err
	}
}
