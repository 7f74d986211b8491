// Package galera provides the clustered-database probe. A node is reported
// only when it is in the primary component, agrees with the cluster state
// UUID and is fully synced.
package galera

import (
	"context"
	"strconv"

	units "github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/probe"
)

// Name is the probe subcommand name.
const Name = "galera"

// Namespace prefixes every metric this probe emits.
const Namespace = "galera"

// syncedState is the wsrep_local_state value of a node that is Synced.
const syncedState = 4

// Query is one of the two statements whose results make up the fact table.
type Query string

const (
	QueryStatus    Query = "SHOW GLOBAL STATUS"
	QueryVariables Query = "SHOW GLOBAL VARIABLES"
)

// Queries are run in this order; facts from earlier queries win on collision.
var Queries = []Query{QueryStatus, QueryVariables}

// Source fetches the result of one query as a fact table.
type Source interface {
	Fetch(ctx context.Context, q Query) (probe.FactTable, error)
}

// emitted maps each emitted metric name to the fact it reports.
var emitted = []struct {
	metric string
	fact   string
}{
	{"wsrep_replicated_bytes", "wsrep_replicated_bytes"},
	{"wsrep_received_bytes", "wsrep_received_bytes"},
	{"wsrep_commit_window_size", "wsrep_commit_window"},
	{"wsrep_cluster_size_nodes", "wsrep_cluster_size"},
	{"queries_per_second", "Queries"},
	{"wsrep_cluster_state_uuid", "wsrep_cluster_state_uuid"},
	{"wsrep_cluster_status", "wsrep_cluster_status"},
	{"wsrep_local_state_uuid", "wsrep_local_state_uuid"},
	{"wsrep_local_state_comment", "wsrep_local_state_comment"},
	{"mysql_max_configured_connections", "max_connections"},
	{"mysql_current_connections", "Threads_connected"},
	{"mysql_max_seen_connections", "Max_used_connections"},
	{"num_of_open_files", "Open_files"},
	{"open_files_limit", "open_files_limit"},
	{"innodb_row_lock_time_avg", "Innodb_row_lock_time_avg"},
	{"innodb_deadlocks", "Innodb_deadlocks"},
	{"access_denied_errors", "Access_denied_errors"},
	{"aborted_clients", "Aborted_clients"},
	{"aborted_connects", "Aborted_connects"},
}

// MetricNames lists the metrics of a healthy run in emission order.
func MetricNames() []string {
	names := make([]string, len(emitted))
	for i, e := range emitted {
		names[i] = e.metric
	}
	return names
}

// GetDescription returns the probe description.
func GetDescription() probe.Description {
	return probe.Description{
		Name:        "galera",
		Description: "Check Galera cluster membership, sync state and server counters",
		Version:     "1.0.0",
		Subcommand:  Name,
		Namespace:   Namespace,
		Metrics:     MetricNames(),
		Arguments: probe.Arguments{
			Optional: map[string]probe.ArgumentSpec{
				"host": {
					Type:        "string",
					Description: "Host to override the defaults file with",
				},
				"port": {
					Type:        "string",
					Description: "Port to override the defaults file with",
				},
			},
		},
	}
}

// Run collects both fact passes from src and evaluates them.
func Run(ctx context.Context, src Source, log *zap.Logger) probe.Outcome {
	facts, err := Collect(ctx, src)
	if err != nil {
		return probe.Failed(err)
	}
	return Evaluate(facts, log)
}

// Collect runs every query in Queries and merges the results.
func Collect(ctx context.Context, src Source) (probe.FactTable, error) {
	merged := make(probe.FactTable)
	for _, q := range Queries {
		facts, err := src.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		merged.Merge(facts)
	}
	return merged, nil
}

// Evaluate applies the health gates in order. A partition or a diverged
// state UUID fails the run. A node that passes both gates but is not in
// state 4 "Synced" yields no metrics and no error.
func Evaluate(facts probe.FactTable, log *zap.Logger) probe.Outcome {
	if log == nil {
		log = zap.NewNop()
	}

	clusterStatus, err := facts.String("wsrep_cluster_status")
	if err != nil {
		return probe.Failed(err)
	}
	if clusterStatus != "Primary" {
		log.Warn("node outside primary component", zap.String("wsrep_cluster_status", clusterStatus))
		return probe.Failed(probe.GateFailure("there is a partition in the cluster"))
	}

	localUUID, err := facts.String("wsrep_local_state_uuid")
	if err != nil {
		return probe.Failed(err)
	}
	clusterUUID, err := facts.String("wsrep_cluster_state_uuid")
	if err != nil {
		return probe.Failed(err)
	}
	if localUUID != clusterUUID {
		log.Warn("state uuid mismatch",
			zap.String("local", localUUID),
			zap.String("cluster", clusterUUID),
		)
		return probe.Failed(probe.GateFailure("the local node is out of sync"))
	}

	state, err := facts.Int("wsrep_local_state")
	if err != nil {
		return probe.Failed(err)
	}
	if state != syncedState {
		log.Info("node not synced yet", zap.Int64("wsrep_local_state", state))
		return probe.Incomplete()
	}
	comment, err := facts.String("wsrep_local_state_comment")
	if err != nil {
		return probe.Failed(err)
	}
	if comment != "Synced" {
		log.Info("node not synced yet", zap.String("wsrep_local_state_comment", comment))
		return probe.Incomplete()
	}

	metrics := make([]probe.Metric, 0, len(emitted))
	for _, e := range emitted {
		v, err := facts.String(e.fact)
		if err != nil {
			return probe.Failed(err)
		}
		metrics = append(metrics, probe.NewMetric(Namespace, e.metric, v))
	}

	log.Debug("node synced",
		zap.String("replicated", humanBytes(facts["wsrep_replicated_bytes"])),
		zap.String("received", humanBytes(facts["wsrep_received_bytes"])),
		zap.String("cluster_size", facts["wsrep_cluster_size"]),
	)
	return probe.Healthy(metrics...)
}

func humanBytes(raw string) string {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return units.HumanSize(n)
}
