//go:build linux

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/touka-aoi/oneshot/application/random"
	"github.com/touka-aoi/oneshot/config"
	"github.com/touka-aoi/oneshot/logger"
	"github.com/touka-aoi/oneshot/middleware"
	"github.com/touka-aoi/oneshot/server"
)

var version = "dev"

// CLI flags override the config file, which overrides the defaults.
type CLI struct {
	Config     string           `short:"c" help:"Path to the ini config file. Looked up in the XDG config directories when empty." placeholder:"PATH" type:"path"`
	Address    string           `help:"IPv4 address to bind." placeholder:"ADDR"`
	Port       int              `short:"p" help:"Port to listen on."`
	BufferSize int              `help:"Receive chunk size in bytes." placeholder:"BYTES"`
	Once       bool             `help:"Serve a single connection, then exit."`
	LogLevel   string           `help:"Log level: trace, debug, info, warn, error." placeholder:"LEVEL"`
	Version    kong.VersionFlag `short:"v" help:"Show version information."`
}

func (c *CLI) resolve() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.Address != "" {
		cfg.Address = c.Address
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.BufferSize != 0 {
		cfg.BufferSize = c.BufferSize
	}
	if c.Once {
		cfg.Continuous = false
	}
	if c.LogLevel != "" {
		cfg.Level = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLI) Run(ctx context.Context) error {
	cfg, err := c.resolve()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Init(cfg.Level)

	pipeline := middleware.NewPipeline().
		Use(middleware.RequestLogger(logger.WithComponent("pipeline")))

	ns, err := server.NewNetworkServer(server.NetworkServerConfig{
		Address:    cfg.Address,
		Port:       cfg.Port,
		BufferSize: cfg.BufferSize,
		Continuous: cfg.Continuous,
	}, server.WithPipeline(pipeline))
	if err != nil {
		return err
	}

	log.Info().Str("version", version).Str("address", ns.Addr()).Bool("continuous", cfg.Continuous).Msg("Remote application started")
	return ns.Serve(ctx, random.New())
}

func main() {
	var cli CLI
	ctx := context.Background()
	kctx := kong.Parse(&cli,
		kong.Name("oneshot"),
		kong.Description("Single-connection TCP request/response server.\n\nAnswers {\"type\":\"random\"} with a random value between 1 and 100."),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if err := kctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "oneshot: %v\n", err)
		os.Exit(1)
	}
}
