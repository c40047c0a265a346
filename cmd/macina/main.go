package main

import (
	"os"

	"github.com/macina-app/macina/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
