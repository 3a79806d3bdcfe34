// Command relief runs the ReliefConnect product and order service: a record
// store whose writes are mirrored into a vector index, a product search, and
// an HTTP API with a recommendation endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/reliefconnect/cmd/relief/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
