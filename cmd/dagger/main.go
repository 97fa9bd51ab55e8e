package main

import (
	"os"

	"dagger/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
