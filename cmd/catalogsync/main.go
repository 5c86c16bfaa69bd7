package main

import (
	"os"

	"catalogsync/cmd/catalogsync/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
