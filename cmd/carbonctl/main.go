// Command carbonctl loads records into a carbondash warehouse and renders
// dashboards from the command line.
package main

import (
	"os"

	"github.com/shopspring/decimal"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	if err := newRootCmd(os.Stdout, nil).Execute(); err != nil {
		os.Exit(1)
	}
}
