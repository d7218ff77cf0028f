package main

import (
	"os"

	"github.com/filipezaidan/google-meet-captions/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
