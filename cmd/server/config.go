package main

import (
	"flag"

	"github.com/rigshare/rigshare/internal/config"
)

var cfgPath string

// Flag values are merged over the yaml config; only flags the user
// actually set win (flag.Visit).
var flagCfg struct {
	listen       string
	opsListen    string
	redisAddr    string
	authDeadline int
	debug        bool
}

// init registers flags into the global flag set. main() parses via
// loadConfig and uses the merged result.
func init() {
	flag.StringVar(&cfgPath, "config", "", "path to a yaml config file (a missing file falls back to defaults)")
	flag.StringVar(&flagCfg.listen, "listen", "", "relay endpoint listen address")
	flag.StringVar(&flagCfg.opsListen, "ops", "", "metrics and health listen address")
	flag.StringVar(&flagCfg.redisAddr, "redis", "", "redis address for the presence mirror (empty disables)")
	flag.IntVar(&flagCfg.authDeadline, "auth-deadline", 0, "seconds a session may take to send its credential frame (0 disables)")
	flag.BoolVar(&flagCfg.debug, "debug", false, "enable debug logs")
}

// loadConfig parses flags, loads the yaml file and applies explicitly
// set flags on top.
func loadConfig() (*config.Config, error) {
	flag.Parse()
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = flagCfg.listen
		case "ops":
			cfg.OpsListen = flagCfg.opsListen
		case "redis":
			cfg.Redis.Addr = flagCfg.redisAddr
		case "auth-deadline":
			cfg.AuthDeadlineSeconds = flagCfg.authDeadline
		case "debug":
			cfg.Debug = flagCfg.debug
		}
	})
	return cfg, nil
}
