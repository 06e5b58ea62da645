// Command ecomlake runs the Olist e-commerce ETL pipeline.
package main

import (
	"os"

	"github.com/paveg/ecomlake/internal/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
