package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "deploy":
		if err := runDeploy(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "shoal deploy: %v\n", err)
			os.Exit(1)
		}
	case "status":
		if err := runStatus(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "shoal status: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "shoal: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: shoal <command> [flags]

Commands:
  deploy primary            Deploy the GPU-backed primary instance
  deploy client <id>        Deploy an isolated client instance
  status <id>               Show the containers of an instance

Run 'shoal <command> --help' for command-specific flags.
`)
}
