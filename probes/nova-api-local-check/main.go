// Command nova-api-local-check runs the nova-api probe with the plugin's original arguments.
package main

import (
	"os"

	"github.com/jandubois/infraprobe/cmd"
)

func main() {
	if err := cmd.ExecuteProbe("nova-api"); err != nil {
		os.Exit(1)
	}
}
