package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thisisjab/sluice/config"
	"github.com/thisisjab/sluice/dedup"
	"github.com/thisisjab/sluice/engine"
	"github.com/thisisjab/sluice/processor"
	"github.com/thisisjab/sluice/receiver"
	"github.com/thisisjab/sluice/storage"
	"gopkg.in/yaml.v3"
)

func main() {
	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "", "path to optional config file")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		fileContent, err := os.ReadFile(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read config file content: %v\n", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(fileContent, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "cannot parse config file: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting sluice.",
		"udp_port", cfg.UDP.Receiver.Port, "udp_enabled", cfg.UDP.Enabled,
		"tls_port", cfg.TLS.Receiver.Port, "tls_enabled", cfg.TLS.Enabled,
		"log_dir", cfg.Storage.Dir)

	// Setup signal handling to catch Ctrl+C (SIGINT) or Terminate (SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal. shutting down.", "signal", sig)
		cancel()
	}()

	primary, err := storage.NewSeverityFileStorage(logger, cfg.Storage.Dir)
	if err != nil {
		logger.Error("storage error.", "error", err)
		os.Exit(1)
	}
	defer primary.Close()

	engineCfg := engine.Config{
		Storage:       primary,
		Dedup:         dedup.New(cfg.Dedup, nil),
		ShutdownGrace: cfg.ShutdownGrace,
	}

	if cfg.Storage.Mirror.Type == "clickhouse" {
		chCfg, err := cfg.MirrorStorageConfig()
		if err != nil {
			logger.Error("mirror config error.", "error", err)
			os.Exit(1)
		}
		mirror, err := storage.NewClickHouseStorage(chCfg)
		if err != nil {
			logger.Error("mirror storage error.", "error", err)
			os.Exit(1)
		}
		if err := mirror.Connect(ctx); err != nil {
			logger.Error("cannot connect mirror storage.", "error", err)
			os.Exit(1)
		}
		defer mirror.Close()

		engineCfg.Mirror = mirror
		engineCfg.MirrorBuffer = cfg.Storage.Mirror.BufferSize
		engineCfg.MirrorFlush = cfg.Storage.Mirror.FlushInterval
	}

	if cfg.Filter.ScriptPath != "" {
		filter, err := processor.NewLuaFilter(processor.LuaFilterConfig{ScriptPath: cfg.Filter.ScriptPath})
		if err != nil {
			logger.Error("filter error.", "error", err)
			os.Exit(1)
		}
		engineCfg.Filter = filter
	}

	if cfg.UDP.Enabled {
		engineCfg.Receivers = append(engineCfg.Receivers,
			receiver.NewUDPReceiver(logger, cfg.UDP.Receiver))
	}
	if cfg.TLS.Enabled {
		engineCfg.Receivers = append(engineCfg.Receivers,
			receiver.NewTLSReceiver(logger, cfg.TLS.Receiver))
	}

	eng, err := engine.New(engineCfg, logger)
	if err != nil {
		logger.Error("engine error.", "error", err)
		os.Exit(1)
	}

	if err := eng.Run(ctx); err != nil {
		logger.Error("engine error.", "error", err)
		primary.Close()
		os.Exit(1)
	}

	logger.Info("sluice stopped.")
}
