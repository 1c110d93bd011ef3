// Command ssdtbuild builds a deployable SQL Server Data Tools artifact set
// from an OutSystems logical model and a runtime profiling snapshot.
package main

import (
	"fmt"
	"os"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/cliapp"
)

func main() {
	if err := cliapp.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
