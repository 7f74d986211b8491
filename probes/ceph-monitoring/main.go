// Command ceph-monitoring runs the ceph probes. The mode is the first
// subcommand: cluster, mon or osd.
package main

import (
	"os"

	"github.com/jandubois/infraprobe/cmd"
)

func main() {
	if err := cmd.ExecuteProbe("ceph"); err != nil {
		os.Exit(1)
	}
}
