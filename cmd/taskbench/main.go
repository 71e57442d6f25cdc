// Command taskbench drives a batch scheduler with synthetic workloads and
// reports how the work was spread across worker threads.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "taskbench",
		Usage: "run batches of tasks on a per-core worker pool",
		Commands: []*cli.Command{
			RunCommand(),
			CoresCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
