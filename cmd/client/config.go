package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/rigshare/rigshare/internal/config"
)

// Config holds client runtime configuration.
type Config struct {
	Server string
	Role   string
	Secret string
	Retry  time.Duration
}

var cfg Config

// init registers all client flags into the default flag set.
func init() {
	flag.StringVar(&cfg.Server, "server", "ws://127.0.0.1:8080", "relay base URL")
	flag.StringVar(&cfg.Role, "role", "status", "endpoint role: sharer, controller or status")
	flag.StringVar(&cfg.Secret, "secret", "", "credential secret; defaults to the role's RIGSHARE_*_SECRET env var")
	flag.DurationVar(&cfg.Retry, "retry", 2*time.Second, "delay before reconnecting after a dropped session")
	flag.Parse()
	if cfg.Secret == "" {
		// Status observers share the sharer-side secret.
		switch cfg.Role {
		case "controller":
			cfg.Secret = os.Getenv(config.EnvControllerSecret)
		default:
			cfg.Secret = os.Getenv(config.EnvSharerSecret)
		}
	}
}

func (c Config) endpoint() string {
	return strings.TrimRight(c.Server, "/") + "/" + c.Role
}
