package main

import (
	"fmt"
	"os"

	"decafc/src/backend"
	"decafc/src/ir"
	"decafc/src/ir/lower"
	"decafc/src/util"
)

func main() {
	// Parse command line arguments and optional TOML configuration.
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}

	// Initiate pipeline logger.
	log, err := util.NewLogger(opt)
	if err != nil {
		fmt.Printf("Could not initiate logger: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	// The frontend (lexer, parser, semantic checker) is an external
	// collaborator. It hands over the checked syntax tree through
	// ir.Root before this back-end runs.
	if ir.Root == nil {
		fmt.Println("No checked syntax tree: the frontend has not populated ir.Root.")
		os.Exit(1)
	}

	// Plan object layout and dispatch tables.
	ir.Layout(log, ir.Root)

	// Lower the checked syntax tree to three-address code.
	prog, err := lower.Program(log, ir.Root)
	if err != nil {
		fmt.Printf("Code generation error: %s\n", err)
		os.Exit(1)
	}

	// Initiate output writer.
	if len(opt.Out) > 0 {
		// Attempt to open output file. Create new file if necessary.
		f, err := os.OpenFile(opt.Out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer func(f *os.File) {
			if err := f.Close(); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}(f)
		util.ListenWrite(opt.Threads, f)
	} else {
		// Write results to stdout.
		util.ListenWrite(opt.Threads, nil)
	}

	// Run the backend pipeline: dataflow, register allocation and
	// assembly emission (or one of the debug forms).
	wr := util.NewWriter()
	if err := backend.Generate(opt, log, wr, prog); err != nil {
		fmt.Printf("Code generation error: %s\n", err)
		wr.Close()
		util.Close()
		os.Exit(1)
	}

	// Stop the output writer.
	wr.Close()
	util.Close()
}
