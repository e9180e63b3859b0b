// aetherlessd is the aetherless packet classifier daemon.
//
// It classifies inbound IPv4 TCP/UDP traffic against a port redirect
// table, either in the kernel via an XDP program or in userspace via
// AF_PACKET capture, and exposes an HTTP API for control and
// statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aetherless/aetherless/pkg/config"
	"github.com/aetherless/aetherless/pkg/daemon"
)

func main() {
	configFile := flag.String("config", "", "configuration file path (default "+config.DefaultPath+")")
	iface := flag.String("interface", "", "network interface to classify (overrides config)")
	policy := flag.String("policy", "", "classification policy: permissive or strict (overrides config)")
	apiAddr := flag.String("api-addr", "", "HTTP API listen address (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	d := daemon.New(daemon.Options{
		ConfigFile: *configFile,
		Interface:  *iface,
		Policy:     *policy,
		APIAddr:    *apiAddr,
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "aetherlessd: %v\n", err)
		os.Exit(1)
	}
}
