package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"termpool/pkg/capacity"
	"termpool/pkg/config"
	"termpool/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "termpool",
	Short: "termpool - supervised pool of assistant terminals",
	Long:  `termpool keeps a pool of long-lived assistant terminals healthy, dispatches queued tasks to them, repairs or replaces terminals that stop responding and escalates tasks that keep failing.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool and its HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Print the pool size this host supports and how it was computed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		sizer, err := capacity.NewSizer(cfg.Pool)
		if err != nil {
			return err
		}
		data, err := json.Marshal(sizer.Estimate())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(pretty.Pretty(data)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or config/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sizeCmd)
}

// loadConfig reads the config file; optional falls back to defaults when the file is missing
func loadConfig(optional bool) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	config.GlobalConfig = cfg
	return cfg, nil
}

func serve() error {
	app := NewApplication()

	if err := app.Initialize(); err != nil {
		return fmt.Errorf("application initialization failed: %w", err)
	}

	if err := app.Start(); err != nil {
		return fmt.Errorf("application startup failed: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.InfoCtx(app.ctx, "Received exit signal: %v", sig)
	case <-app.Done():
		logger.WarnCtx(app.ctx, "Application stopped itself")
	}

	if err := app.Shutdown(app.config.Pool.ShutdownTimeout); err != nil {
		return fmt.Errorf("application shutdown failed: %w", err)
	}

	logger.InfoCtx(app.ctx, "Application safely exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
