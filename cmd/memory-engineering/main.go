package main

import (
	"os"

	"github.com/romiluz13/memory-engineering/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
