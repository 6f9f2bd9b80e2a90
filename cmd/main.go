package main

import (
	"os"

	"github.com/faultgraph/faultgraph/cmd/faultgraph"
)

func main() {
	if err := faultgraph.Execute(); err != nil {
		os.Exit(1)
	}
}
