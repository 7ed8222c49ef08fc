package main

import (
	"os"

	"github.com/soundprediction/lorekeeper/cmd/lorekeeper"
)

func main() {
	if err := lorekeeper.Execute(); err != nil {
		os.Exit(1)
	}
}
