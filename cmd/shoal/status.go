package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/shoalproj/shoal/internal/deploy"
	"github.com/shoalproj/shoal/internal/dockerutil"
)

func runStatus(args []string) error {
	flags := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: shoal status <instance_id>")
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) != 1 {
		flags.Usage()
		return fmt.Errorf("instance id is required")
	}
	id, err := strconv.Atoi(rest[0])
	if err != nil || id < 1 {
		return fmt.Errorf("instance id must be a positive integer, got %q", rest[0])
	}

	docker, err := dockerutil.Client()
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}

	o := &deploy.Orchestrator{Docker: docker}
	containers, err := o.Namespace(context.Background(), id)
	if err != nil {
		return fmt.Errorf("list instance %d: %w", id, err)
	}
	if len(containers) == 0 {
		fmt.Printf("instance %d: not deployed\n", id)
		return nil
	}

	fmt.Printf("instance %d:\n", id)
	for _, c := range containers {
		name := strings.TrimPrefix(c.Names[0], "/")
		fmt.Printf("  %-24s %-10s %s\n", name, c.State, c.Status)
	}
	return nil
}
