package main

import (
	"os"

	"github.com/millflow/millflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
