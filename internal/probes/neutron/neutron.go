// Package neutron provides the networking API availability probe.
package neutron

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jandubois/infraprobe/internal/probe"
)

// Name is the probe subcommand name.
const Name = "neutron-api"

// Namespace prefixes every metric this probe emits.
const Namespace = "neutron_api"

// DefaultPort is the networking API port used with an address override.
const DefaultPort = 9696

// Resource is a networking API record. Only its presence is counted.
type Resource struct {
	ID   string
	Name string
}

// Client lists networking resources.
type Client interface {
	ListNetworks(ctx context.Context) ([]Resource, error)
	ListAgents(ctx context.Context) ([]Resource, error)
	ListRouters(ctx context.Context) ([]Resource, error)
	ListSubnets(ctx context.Context) ([]Resource, error)
}

// GetDescription returns the probe description.
func GetDescription() probe.Description {
	return probe.Description{
		Name:        "neutron-api",
		Description: "Check the Neutron API against the local or a remote address",
		Version:     "1.0.0",
		Subcommand:  Name,
		Namespace:   Namespace,
		Metrics: []string{
			"neutron_api_local_status",
			"neutron_api_local_response_time",
			"neutron_networks",
			"neutron_agents",
			"neutron_routers_agents",
			"neutron_subnets",
		},
		Arguments: probe.Arguments{
			Optional: map[string]probe.ArgumentSpec{
				"ip": {
					Type:        "string",
					Description: "Optional Neutron API server IPv4 address",
				},
			},
		},
	}
}

// Run reports availability and, when the API is up, the time taken to list
// agents and the size of each resource collection.
func Run(ctx context.Context, reach probe.Reachability[Client], clock clockwork.Clock) probe.Outcome {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return probe.CheckAPI(reach, Namespace, func(c Client) ([]probe.Metric, error) {
		start := clock.Now()
		if _, err := c.ListAgents(ctx); err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		elapsed := clock.Since(start)

		networks, err := c.ListNetworks(ctx)
		if err != nil {
			return nil, fmt.Errorf("list networks: %w", err)
		}
		agents, err := c.ListAgents(ctx)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		routers, err := c.ListRouters(ctx)
		if err != nil {
			return nil, fmt.Errorf("list routers: %w", err)
		}
		subnets, err := c.ListSubnets(ctx)
		if err != nil {
			return nil, fmt.Errorf("list subnets: %w", err)
		}

		return []probe.Metric{
			probe.FloatMetric(Namespace, "neutron_api_local_response_time", milliseconds(elapsed)),
			probe.IntMetric(Namespace, "neutron_networks", int64(len(networks))),
			probe.IntMetric(Namespace, "neutron_agents", int64(len(agents))),
			// Reports routers; the name is what existing alarms key on.
			probe.IntMetric(Namespace, "neutron_routers_agents", int64(len(routers))),
			probe.IntMetric(Namespace, "neutron_subnets", int64(len(subnets))),
		}, nil
	})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
