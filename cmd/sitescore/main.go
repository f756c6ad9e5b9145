package main

import (
	"os"

	"github.com/raysh454/sitescore/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
