package main

import (
	"fmt"
	"os"

	"github.com/input-output-hk/planvault/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app, err := cli.DefaultApp()
	if err != nil {
		return err
	}
	return cli.NewRootCmd(app).Execute()
}
