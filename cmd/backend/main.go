package main

import (
	"os"

	"github.com/caiquemiranda/backend-base/cmd/backend/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
