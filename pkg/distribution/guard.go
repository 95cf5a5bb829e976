package distribution

import (
	"fmt"

	"github.com/hyp3rd/hypergrid/internal/cluster"
	"github.com/hyp3rd/hypergrid/internal/sentinel"
	"github.com/hyp3rd/hypergrid/pkg/command"
	"github.com/hyp3rd/hypergrid/pkg/future"
)

// CheckTopology returns the current topology, or an OutdatedTopologyError carrying the
// current topology id when cmd was routed against another one.
func (i *Interceptor) CheckTopology(cmd command.Command) (*cluster.LocalizedTopology, error) {
	topo := i.topology.CacheTopology()
	current := topo.ID()
	cmdTopology := cmd.Meta().TopologyID

	if current != cmdTopology && cmdTopology != cluster.UnsetTopologyID {
		return nil, sentinel.NewOutdatedTopology(current,
			fmt.Sprintf("command was routed against topology %d", cmdTopology))
	}

	i.logger.Trace("topology checked", "current", current, "command", cmdTopology)

	return topo, nil
}

// HandleMissingEntryOnRead answers a read that reached a node which did not wrap the key.
//
// When the command is older than the local state, the requester is stale and gets
// command.Unsuccessful. When both agree, this node held a different read view than
// write view while wrapping, and the read is re-routed. A newer command is a routing bug.
func (i *Interceptor) HandleMissingEntryOnRead(cmd command.Command) (any, error) {
	current := i.topology.StateTransferTopologyID()
	cmdTopology := cmd.Meta().TopologyID

	switch {
	case cmdTopology < current:
		return command.Unsuccessful, nil
	case cmdTopology == current:
		return nil, sentinel.NewOutdatedTopology(cmdTopology, "entry was not wrapped under the command topology")
	}

	return nil, sentinel.NewProtocolError("command topology %d is newer than local topology %d", cmdTopology, current)
}

func (i *Interceptor) missingEntryOnRead(cmd command.Command) *future.Future[any] {
	v, err := i.HandleMissingEntryOnRead(cmd)

	f := future.New[any]()
	f.Resolve(v, err)

	return f
}
