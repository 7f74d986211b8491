// Command neutron-api-local-check runs the neutron-api probe with the plugin's original arguments.
package main

import (
	"os"

	"github.com/jandubois/infraprobe/cmd"
)

func main() {
	if err := cmd.ExecuteProbe("neutron-api"); err != nil {
		os.Exit(1)
	}
}
