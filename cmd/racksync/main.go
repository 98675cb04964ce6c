package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/racksync/racksync/internal/client"
	"github.com/racksync/racksync/internal/config"
	"github.com/racksync/racksync/internal/engine"
	"github.com/racksync/racksync/internal/facts"
	"github.com/racksync/racksync/internal/server"
	"github.com/racksync/racksync/internal/statecache"
	"github.com/racksync/racksync/pkg/log"
)

func main() {
	command := NewRacksyncCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

type syncOptions struct {
	configFile string
	factsFile  string
	dryRun     bool
	listen     string
	overrides  config.Overrides
}

func NewRacksyncCommand() *cobra.Command {
	o := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "racksync [flags]",
		Short: "racksync reconciles this host's hardware facts against the remote inventory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&o.configFile, "config", config.DefaultConfigFile, "Path to the configuration file.")
	flags.StringVar(&o.factsFile, "facts", "", "Path to the host facts document.")
	_ = cmd.MarkFlagRequired("facts")
	flags.BoolVar(&o.dryRun, "dry-run", false, "Report planned mutations without applying them.")
	flags.StringVar(&o.listen, "listen", "", "Serve status and metrics on this address while running.")
	flags.StringVar(&o.overrides.Manufacturer, "manufacturer", "", "Override the probed manufacturer.")
	flags.StringVar(&o.overrides.Model, "model", "", "Override the probed model.")
	flags.StringVar(&o.overrides.Serial, "serial", "", "Override the probed serial number.")

	return cmd
}

func (o *syncOptions) run(ctx context.Context) error {
	cfg := config.NewDefault()
	if err := cfg.ParseConfigFile(o.configFile); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger := log.InitLog(logLvl)
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	zap.S().Named("main").Debugf("configuration: %s", cfg)

	overrides, err := config.ResolveOverrides(o.overrides, cfg.Overrides)
	if err != nil {
		return err
	}

	hostFacts, err := facts.Load(o.factsFile)
	if err != nil {
		zap.S().Named("main").Errorf("failed to load host facts: %v", err)
		return err
	}

	cache, err := statecache.Open(cfg.StateCachePath)
	if err != nil {
		zap.S().Named("main").Warnf("state cache unavailable, stale detection degraded: %v", err)
	}
	defer func() { _ = cache.Close() }()

	inv, err := client.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	listen := o.listen
	if listen == "" {
		listen = cfg.Listen
	}
	var srv *server.Server
	if listen != "" {
		srv = server.New(listen)
		go srv.Start()
		defer srv.Stop()
		srv.SetPhase("reconciling")
	}

	e := engine.New(cfg, inv, cache, facts.NewRegistry(), overrides, o.dryRun)
	report, err := e.Run(ctx, hostFacts)
	if err != nil {
		if srv != nil {
			srv.SetPhase("failed")
		}
		zap.S().Named("main").Errorf("reconciliation failed: %v", err)
		return err
	}
	if srv != nil {
		srv.SetReport(report)
		srv.SetPhase("done")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
