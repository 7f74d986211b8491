// Package nova provides the compute API availability probe.
package nova

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jandubois/infraprobe/internal/probe"
)

// Name is the probe subcommand name.
const Name = "nova-api"

// Namespace prefixes every metric this probe emits.
const Namespace = "nova_api"

// DefaultPort is the compute API port used with an address override.
const DefaultPort = 8774

// ServerStatuses are the instance states that are counted. Instances in any
// other state are not reported.
var ServerStatuses = []string{"ACTIVE", "STOPPED", "ERROR"}

// Service is a compute service record.
type Service struct {
	Binary string
	Host   string
	State  string
}

// Server is a compute instance record.
type Server struct {
	ID     string
	Status string
}

// Client lists compute resources. ListServers covers all tenants.
type Client interface {
	ListServices(ctx context.Context) ([]Service, error)
	ListServers(ctx context.Context) ([]Server, error)
}

// GetDescription returns the probe description.
func GetDescription() probe.Description {
	metrics := []string{"nova_api_local_status", "nova_api_local_response_time"}
	for _, s := range ServerStatuses {
		metrics = append(metrics, "nova_instances_in_state_"+s)
	}
	return probe.Description{
		Name:        "nova-api",
		Description: "Check the Nova API against the local or a remote address",
		Version:     "1.0.0",
		Subcommand:  Name,
		Namespace:   Namespace,
		Metrics:     metrics,
		Arguments: probe.Arguments{
			Optional: map[string]probe.ArgumentSpec{
				"ip": {
					Type:        "string",
					Description: "Optional Nova API server IPv4 address",
				},
			},
		},
	}
}

// Run reports availability and, when the API is up, the time taken to list
// services and the number of instances in each counted state.
func Run(ctx context.Context, reach probe.Reachability[Client], clock clockwork.Clock) probe.Outcome {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return probe.CheckAPI(reach, Namespace, func(c Client) ([]probe.Metric, error) {
		start := clock.Now()
		if _, err := c.ListServices(ctx); err != nil {
			return nil, fmt.Errorf("list services: %w", err)
		}
		elapsed := clock.Since(start)

		servers, err := c.ListServers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list servers: %w", err)
		}
		counts := CountByStatus(servers)

		metrics := []probe.Metric{
			probe.FloatMetric(Namespace, "nova_api_local_response_time", float64(elapsed)/float64(time.Millisecond)),
		}
		for _, status := range ServerStatuses {
			metrics = append(metrics, probe.IntMetric(Namespace, "nova_instances_in_state_"+status, int64(counts[status])))
		}
		return metrics, nil
	})
}

// CountByStatus counts servers per status.
func CountByStatus(servers []Server) map[string]int {
	counts := make(map[string]int)
	for _, s := range servers {
		counts[s.Status]++
	}
	return counts
}
