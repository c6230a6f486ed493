// Command processloopd runs a heartbeat on a processloop.Loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joeycumines/go-processloop/internal/cmd/processloopd"
)

func main() {
	if ok, err := processloopd.RunChild(context.Background()); ok {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := processloopd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: parse flags: %v\n", err)
		os.Exit(1)
	}

	if err := processloopd.Run(context.Background(), cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
