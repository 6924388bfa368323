// Command soundloomd runs the soundloom daemon in the foreground. It exists
// for service managers; `soundloom start` launches the same runtime through
// the CLI's hidden daemon subcommand.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"soundloom/internal/config"
	"soundloom/internal/daemonrun"
)

func main() {
	var (
		configPath string
		socketPath string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "Configuration file path")
	flag.StringVar(&socketPath, "socket", "", "Path to the daemon IPC socket")
	flag.BoolVar(&verbose, "verbose", false, "Force debug-level logging")
	flag.Parse()

	if err := run(configPath, socketPath, verbose); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(configPath, socketPath string, verbose bool) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	opts := daemonrun.Options{SocketPath: socketPath}
	if verbose {
		opts.LogLevel = "debug"
	}
	return daemonrun.Run(context.Background(), cfg, opts)
}
