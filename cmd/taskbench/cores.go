package main

import (
	"fmt"
	"runtime"

	"github.com/Swind/go-batch-scheduler/core"
	"github.com/urfave/cli/v2"
)

func CoresCommand() *cli.Command {
	return &cli.Command{
		Name:   "cores",
		Usage:  "print the logical core count a default scheduler would use",
		Action: CoresAction,
	}
}

func CoresAction(c *cli.Context) error {
	fmt.Fprintf(c.App.Writer, "logical cores: %d (runtime.NumCPU: %d)\n", core.LogicalCores(), runtime.NumCPU())
	return nil
}
