package main

import (
	"os"

	"github.com/mahirjain10/convertkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
