// Command galera-check runs the galera probe with the plugin's original arguments.
package main

import (
	"os"

	"github.com/jandubois/infraprobe/cmd"
)

func main() {
	if err := cmd.ExecuteProbe("galera"); err != nil {
		os.Exit(1)
	}
}
