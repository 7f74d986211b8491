// Package probes provides the built-in probe registry.
package probes

import (
	"github.com/jandubois/infraprobe/internal/probe"
	"github.com/jandubois/infraprobe/internal/probes/ceph"
	"github.com/jandubois/infraprobe/internal/probes/galera"
	"github.com/jandubois/infraprobe/internal/probes/neutron"
	"github.com/jandubois/infraprobe/internal/probes/nova"
)

// GetAllDescriptions returns descriptions of all built-in probes.
func GetAllDescriptions() []probe.Description {
	return []probe.Description{
		galera.GetDescription(),
		neutron.GetDescription(),
		nova.GetDescription(),
		ceph.GetDescription(),
	}
}
