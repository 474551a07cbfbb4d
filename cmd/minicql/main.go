// Package main implements the minicql server binary: a single-node
// in-memory database speaking the CQL native protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/arkilian/minicql/internal/app"
	"github.com/arkilian/minicql/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		listenAddr  string
		clusterName string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&listenAddr, "listen", "", "Native protocol listen address (host:port)")
	flag.StringVar(&clusterName, "cluster-name", "", "Cluster name reported in system.local")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "minicql - single-node in-memory CQL server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: minicql [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  minicql --listen :9042\n")
		fmt.Fprintf(os.Stderr, "  minicql --config /etc/minicql/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  MINICQL_LISTEN_ADDR     Native protocol listen address\n")
		fmt.Fprintf(os.Stderr, "  MINICQL_CLUSTER_NAME    Cluster name reported in system.local\n")
		fmt.Fprintf(os.Stderr, "  MINICQL_SNAPSHOT_DIR    Directory for state snapshots\n")
		fmt.Fprintf(os.Stderr, "  MINICQL_LOG_LEVEL       Log level\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("minicql version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, listenAddr, clusterName, logLevel)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// loadConfig layers file, environment, and flag configuration, flags
// taking the highest priority.
func loadConfig(configFile, listenAddr, clusterName, logLevel string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if listenAddr != "" {
		cfg.Listener.Addr = listenAddr
	}
	if clusterName != "" {
		cfg.ClusterName = clusterName
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return cfg, nil
}
