package main

import (
	"os"

	"whitfield/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
