package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/zcash-miden-bridge/pkg/app/bridgeserver"
	"github.com/chainsafe/zcash-miden-bridge/pkg/config"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := bridgeserver.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "relayer exited: %v\n", err)
		os.Exit(1)
	}
}
