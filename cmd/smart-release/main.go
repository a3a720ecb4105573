package main

import (
	"os"

	"github.com/ariel-frischer/smartrelease/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
