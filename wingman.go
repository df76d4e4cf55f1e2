package main

import (
	_ "embed"
	"fmt"
	"os"

	cli "github.com/fridaysatfour/wingman/cmd/wingman"
	"github.com/fridaysatfour/wingman/internal/config"

	"github.com/joho/godotenv"
)

//go:embed etc/wingman.yaml
var embeddedConfig []byte

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	c, err := config.LoadFromBytes(embeddedConfig)
	if err != nil {
		fmt.Printf("Failed to load embedded config: %v\n", err)
		os.Exit(1)
	}

	// An external config file takes precedence over the embedded one.
	if path := os.Getenv("WINGMAN_CONFIG"); path != "" {
		c, err = config.Load(path)
		if err != nil {
			fmt.Printf("Failed to load config %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	if err := cli.SetupRootCmd(&c).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
