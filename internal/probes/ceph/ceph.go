// Package ceph provides the storage cluster probes: overall cluster state,
// a single monitor, and a set of OSDs.
package ceph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/jandubois/infraprobe/internal/probe"
)

// Name is the probe subcommand name.
const Name = "ceph"

// Modes of the probe, one per subcommand.
const (
	ModeCluster = "cluster"
	ModeMon     = "mon"
	ModeOSD     = "osd"
)

const (
	// LegacyClusterNamespace is the cluster namespace existing checks and
	// alarms match on. It is the default.
	LegacyClusterNamespace = "ceph_culster"
	ClusterNamespace       = "ceph_cluster"
	MonNamespace           = "ceph_mon"
	OSDNamespace           = "ceph_osd"
)

// healthValues maps ceph health states to reported values.
var healthValues = map[string]int64{
	"HEALTH_OK":   2,
	"HEALTH_WARN": 1,
	"HEALTH_ERR":  0,
}

// Status is the subset of `ceph status` that is reported.
type Status struct {
	Health struct {
		OverallStatus string `json:"overall_status"`
		Health        struct {
			HealthServices []struct {
				Mons []MonHealth `json:"mons"`
			} `json:"health_services"`
		} `json:"health"`
	} `json:"health"`
	Quorum []int `json:"quorum"`
	MonMap struct {
		Epoch int64         `json:"epoch"`
		Mons  []MonmapEntry `json:"mons"`
	} `json:"monmap"`
	OSDMap struct {
		OSDMap struct {
			Epoch     int64 `json:"epoch"`
			NumOSDs   int64 `json:"num_osds"`
			NumUpOSDs int64 `json:"num_up_osds"`
			NumInOSDs int64 `json:"num_in_osds"`
		} `json:"osdmap"`
	} `json:"osdmap"`
	PGMap struct {
		BytesUsed  int64 `json:"bytes_used"`
		BytesAvail int64 `json:"bytes_avail"`
		BytesTotal int64 `json:"bytes_total"`
		NumPGs     int64 `json:"num_pgs"`
		PGsByState []struct {
			StateName string `json:"state_name"`
			Count     int64  `json:"count"`
		} `json:"pgs_by_state"`
	} `json:"pgmap"`
}

// MonmapEntry is one monitor in the monmap.
type MonmapEntry struct {
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

type MonHealth struct {
	Name   string `json:"name"`
	Health string `json:"health"`
}

// OSDDump is the subset of `ceph osd dump` that is reported.
type OSDDump struct {
	OSDs []OSDState `json:"osds"`
}

// OSDState flags are 1 or 0.
type OSDState struct {
	OSD int `json:"osd"`
	Up  int `json:"up"`
	In  int `json:"in"`
}

// OSDUsage is one row of `ceph pg dump osds`.
type OSDUsage struct {
	OSD     int   `json:"osd"`
	KB      int64 `json:"kb"`
	KBUsed  int64 `json:"kb_used"`
	KBAvail int64 `json:"kb_avail"`
}

// Source returns decoded ceph command output.
type Source interface {
	Status(ctx context.Context) (*Status, error)
	OSDDump(ctx context.Context) (*OSDDump, error)
	PGDumpOSDs(ctx context.Context) ([]OSDUsage, error)
}

// ClusterMetrics lists the cluster metrics in emission order.
var ClusterMetrics = []string{
	"cluster_health",
	"monmap_epoch",
	"osdmap_epoch",
	"osds_total",
	"osds_up",
	"osds_in",
	"osds_kb_used",
	"osds_kb_avail",
	"osds_kb",
	"pgs_total",
	"pgs_active_clean",
}

// GetDescription returns the probe description.
func GetDescription() probe.Description {
	return probe.Description{
		Name:        "ceph",
		Description: "Check ceph cluster health, a monitor's quorum membership or OSD usage",
		Version:     "1.0.0",
		Subcommand:  Name,
		Namespace:   LegacyClusterNamespace,
		Metrics:     ClusterMetrics,
		Arguments: probe.Arguments{
			Required: map[string]probe.ArgumentSpec{
				"name": {
					Type:        "string",
					Description: "Ceph client name",
				},
				"keyring": {
					Type:        "string",
					Description: "Ceph client keyring",
				},
				"mode": {
					Type:        "string",
					Description: "What to check",
					Enum:        []string{ModeCluster, ModeMon, ModeOSD},
				},
			},
			Optional: map[string]probe.ArgumentSpec{
				"host": {
					Type:        "string",
					Description: "Monitor hostname, required for mon",
				},
				"osd-ids": {
					Type:        "string",
					Description: "Space or comma separated OSD IDs, required for osd",
				},
			},
		},
	}
}

// Cluster reports overall health, map epochs, OSD counts, capacity and
// placement group counts under namespace, LegacyClusterNamespace if empty.
func Cluster(ctx context.Context, src Source, namespace string, log *zap.Logger) probe.Outcome {
	if log == nil {
		log = zap.NewNop()
	}
	if namespace == "" {
		namespace = LegacyClusterNamespace
	}
	st, err := src.Status(ctx)
	if err != nil {
		return probe.Failed(err)
	}
	health, err := healthValue(st.Health.OverallStatus)
	if err != nil {
		return probe.Failed(err)
	}

	var activeClean int64
	for _, s := range st.PGMap.PGsByState {
		if s.StateName == "active+clean" {
			activeClean = s.Count
			break
		}
	}

	osdmap := st.OSDMap.OSDMap
	values := []int64{
		health,
		st.MonMap.Epoch,
		osdmap.Epoch,
		osdmap.NumOSDs,
		osdmap.NumUpOSDs,
		osdmap.NumInOSDs,
		st.PGMap.BytesUsed / 1024,
		st.PGMap.BytesAvail / 1024,
		st.PGMap.BytesTotal / 1024,
		st.PGMap.NumPGs,
		activeClean,
	}
	metrics := make([]probe.Metric, len(ClusterMetrics))
	for i, name := range ClusterMetrics {
		metrics[i] = probe.IntMetric(namespace, name, values[i])
	}

	log.Debug("cluster status",
		zap.String("health", st.Health.OverallStatus),
		zap.String("used", units.BytesSize(float64(st.PGMap.BytesUsed))),
		zap.String("total", units.BytesSize(float64(st.PGMap.BytesTotal))),
	)
	return probe.Healthy(metrics...)
}

// Mon reports whether the monitor on host is in quorum and its health. A
// monitor without a health entry is reported as HEALTH_ERR.
func Mon(ctx context.Context, src Source, host string) probe.Outcome {
	st, err := src.Status(ctx)
	if err != nil {
		return probe.Failed(err)
	}

	rank := -1
	for _, m := range st.MonMap.Mons {
		if m.Name == host {
			rank = m.Rank
			break
		}
	}
	if rank < 0 {
		return probe.Failed(fmt.Errorf("The mon %s does not exist.", host))
	}
	inQuorum := false
	for _, r := range st.Quorum {
		if r == rank {
			inQuorum = true
			break
		}
	}

	var health int64
	if services := st.Health.Health.HealthServices; len(services) > 0 {
		for _, m := range services[0].Mons {
			if m.Name == host {
				health, err = healthValue(m.Health)
				if err != nil {
					return probe.Failed(err)
				}
				break
			}
		}
	}

	return probe.Healthy(
		probe.BoolMetric(MonNamespace, "mon_in_quorum", inQuorum),
		probe.IntMetric(MonNamespace, "mon_health", health),
	)
}

// OSD reports the up and in flags and the capacity of each OSD in ids.
func OSD(ctx context.Context, src Source, ids []int) probe.Outcome {
	dump, err := src.OSDDump(ctx)
	if err != nil {
		return probe.Failed(err)
	}
	usage, err := src.PGDumpOSDs(ctx)
	if err != nil {
		return probe.Failed(err)
	}

	var metrics []probe.Metric
	for _, id := range ids {
		ref := "osd." + strconv.Itoa(id)

		state, ok := findState(dump.OSDs, id)
		if !ok {
			return probe.Failed(fmt.Errorf("The OSD ID %d does not exist.", id))
		}
		metrics = append(metrics,
			probe.BoolMetric(OSDNamespace, ref+"_up", state.Up != 0),
			probe.BoolMetric(OSDNamespace, ref+"_in", state.In != 0),
		)

		u, ok := findUsage(usage, id)
		if !ok {
			return probe.Failed(probe.ExtractionFailure(fmt.Sprintf("no usage reported for OSD %d", id), nil))
		}
		metrics = append(metrics,
			probe.IntMetric(OSDNamespace, ref+"_kb", u.KB),
			probe.IntMetric(OSDNamespace, ref+"_kb_used", u.KBUsed),
			probe.IntMetric(OSDNamespace, ref+"_kb_avail", u.KBAvail),
		)
	}
	return probe.Healthy(metrics...)
}

// ParseOSDIDs parses a space or comma separated list of OSD IDs.
func ParseOSDIDs(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no OSD IDs given")
	}
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid OSD ID %q", f)
		}
		ids[i] = id
	}
	return ids, nil
}

func healthValue(status string) (int64, error) {
	v, ok := healthValues[status]
	if !ok {
		return 0, probe.ExtractionFailure(fmt.Sprintf("unknown health status %q", status), nil)
	}
	return v, nil
}

func findState(osds []OSDState, id int) (OSDState, bool) {
	for _, o := range osds {
		if o.OSD == id {
			return o, true
		}
	}
	return OSDState{}, false
}

func findUsage(usage []OSDUsage, id int) (OSDUsage, bool) {
	for _, u := range usage {
		if u.OSD == id {
			return u, true
		}
	}
	return OSDUsage{}, false
}
