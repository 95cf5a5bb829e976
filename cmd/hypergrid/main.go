// Command hypergrid runs a local grid of nodes talking over HTTP and walks through its operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/config"
	"github.com/hyp3rd/hypergrid/internal/libs/serializer"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/middleware"
	"github.com/hyp3rd/hypergrid/pkg/node"
	"github.com/hyp3rd/hypergrid/pkg/persistence"
	"github.com/hyp3rd/hypergrid/pkg/rpc"
)

const shutdownTimeout = 5 * time.Second

type member struct {
	node   *node.Node
	server *rpc.HTTPServer
}

func main() {
	cfgPath := flag.String("config", "", "path to a TOML config; defaults are used when empty")
	size := flag.Int("nodes", 3, "number of local nodes to start")
	serve := flag.Bool("serve", false, "keep serving after the walkthrough until interrupted")

	flag.Parse()

	err := run(*cfgPath, *size, *serve)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg := config.Defaults()
	cfg.NodeID = "node"

	return cfg, cfg.Validate()
}

func run(cfgPath string, size int, serve bool) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "hypergrid",
		Level: hclog.LevelFromString(cfg.LogLevel),
		Color: hclog.AutoColor,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []node.Option

	if cfg.Redis != nil {
		ser, err := serializer.New(cfg.Serializer)
		if err != nil {
			return err
		}

		store, err := persistence.NewRedisStoreFromConfig(cfg.Redis, ser)
		if err != nil {
			return err
		}
		defer store.Close()

		opts = append(opts, node.WithStore(store))
	}

	members, membership, err := startGrid(ctx, cfg, size, logger, opts)
	if err != nil {
		return err
	}
	defer stopGrid(members, logger)

	logger.Info("grid ready", "nodes", len(members), "topology", membership.Topology().ID())

	err = walkthrough(ctx, members, logger)
	if err != nil {
		return err
	}

	if serve {
		logger.Info("serving, interrupt to stop")
		<-ctx.Done()
	}

	return nil
}

// startGrid starts size nodes sharing one membership. Every node listens on an ephemeral
// port and reaches its peers through the HTTP transport.
func startGrid(ctx context.Context, cfg config.Config, size int, logger hclog.Logger, opts []node.Option) ([]member, *cluster.Membership, error) {
	var (
		mu    sync.RWMutex
		addrs = map[cluster.NodeID]string{}
	)

	transport := rpc.NewHTTPTransport(cfg.RemoteTimeout, func(id cluster.NodeID) (string, bool) {
		mu.RLock()
		defer mu.RUnlock()

		addr, ok := addrs[id]

		return addr, ok
	})

	var membership *cluster.Membership

	members := make([]member, 0, size)

	for i := range size {
		nodeCfg := cfg
		nodeCfg.NodeID = fmt.Sprintf("%s-%d", cfg.NodeID, i)

		var (
			n   *node.Node
			err error
		)

		nodeOpts := append([]node.Option{node.WithLogger(logger)}, opts...)

		if membership == nil {
			n, membership, err = node.NewFromConfig(nodeCfg, transport, nodeOpts...)
		} else {
			n, err = node.New(cluster.NodeID(nodeCfg.NodeID), membership, transport,
				append(nodeOpts,
					node.WithReplicated(cfg.Replicated()),
					node.WithSynchronous(cfg.Sync),
					node.WithRemoteTimeout(cfg.RemoteTimeout),
					node.WithStaggerDelay(cfg.StaggerDelay),
					node.WithMaxRetries(cfg.MaxRetries),
				)...)
		}

		if err != nil {
			stopGrid(members, logger)

			return nil, nil, err
		}

		srv := rpc.NewHTTPServer("127.0.0.1:0",
			rpc.WithMetricsSource(func() any { return n.Metrics() }),
			rpc.WithMembersSource(n.Members),
		)

		err = srv.Start(ctx, n)
		if err != nil {
			stopGrid(members, logger)

			return nil, nil, err
		}

		mu.Lock()
		addrs[n.ID()] = "http://" + srv.Addr()
		mu.Unlock()

		err = n.Start(ctx)
		if err != nil {
			stopGrid(members, logger)

			return nil, nil, err
		}

		members = append(members, member{node: n, server: srv})
	}

	for _, m := range members {
		err := transport.Health(ctx, m.node.ID())
		if err != nil {
			logger.Warn("peer not healthy", "node", m.node.ID(), "error", err)
		}
	}

	if len(members) > 0 {
		view, err := transport.Members(ctx, members[0].node.ID())
		if err != nil {
			logger.Warn("membership view unavailable", "node", members[0].node.ID(), "error", err)
		} else {
			logger.Info("grid started", "members", len(view), "topology", membership.Topology().ID())
		}
	}

	return members, membership, nil
}

func stopGrid(members []member, logger hclog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, m := range members {
		err := m.node.Stop(ctx)
		if err != nil {
			logger.Warn("stopping node", "node", m.node.ID(), "error", err)
		}

		err = m.server.Stop(ctx)
		if err != nil {
			logger.Warn("stopping server", "node", m.node.ID(), "error", err)
		}
	}
}

func walkthrough(ctx context.Context, members []member, logger hclog.Logger) error {
	first := members[0].node
	last := members[len(members)-1].node

	svc := node.ApplyMiddleware(first, middleware.Logging(
		logger.Named("client").StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	))

	keys := make([]string, 0, 8)

	for i := range 8 {
		key := fmt.Sprintf("{orders}:%d", i)
		if i%2 == 1 {
			key = fmt.Sprintf("user:%d", i)
		}

		keys = append(keys, key)

		_, err := svc.Put(ctx, key, fmt.Sprintf("value-%d", i))
		if err != nil {
			return err
		}
	}

	kvs, err := last.GetAll(ctx, keys...)
	if err != nil {
		return err
	}

	for _, kv := range kvs {
		logger.Info("batch read", "key", kv.Key, "value", kv.Value, "found", kv.Found)
	}

	_, stored, err := last.PutIfAbsent(ctx, keys[0], "ignored")
	if err != nil {
		return err
	}

	logger.Info("put if absent on an existing key", "stored", stored)

	exists, err := last.EvalMany(ctx, []string{keys[1], "user:missing"}, command.FuncExists, nil)
	if err != nil {
		return err
	}

	logger.Info("functional batch read", "results", exists)

	for range 3 {
		_, err = svc.Update(ctx, "hits", command.FuncIncrement, nil)
		if err != nil {
			return err
		}
	}

	hits, err := last.Update(ctx, "hits", command.FuncIncrement, 10)
	if err != nil {
		return err
	}

	logger.Info("functional write", "key", "hits", "value", hits)

	entries, err := last.Group(ctx, "orders")
	if err != nil {
		return err
	}

	logger.Info("group listing", "group", "orders", "entries", len(entries))

	err = svc.Clear(ctx)
	if err != nil {
		return err
	}

	for _, m := range members {
		logger.Info("node metrics", "node", m.node.ID(), "entries", m.node.Container().Len(), "metrics", fmt.Sprintf("%+v", m.node.Metrics()))
	}

	return nil
}
