package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PicarNav/internal/model"
	"PicarNav/internal/util"
)

const defaultConfigPath = "configs/config.yml"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	logDir     string
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:   "picarnav",
		Short: "PiCar-X line following and obstacle avoidance",
		Long: `picarnav runs the navigation loop of a PiCar-X robot: line following on
the grayscale sensor or the camera, ultrasonic obstacle avoidance, traffic
sign reactions and operator commands over websocket, HTTP and MQTT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&gf.configPath, "config", "c", defaultConfigPath, "YAML configuration file")
	pf.StringVar(&gf.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&gf.logFormat, "log-format", "", "log format override (text, json)")
	pf.StringVar(&gf.logDir, "log-dir", "", "also write a per-run log file in this directory")

	root.AddCommand(newRunCmd(gf), newSimulateCmd(gf), newConfigCmd(gf))
	return root
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return newRootCmd().ExecuteContext(ctx)
}

// loadConfig reads the config file and applies the global log overrides.
// found is false when the file does not exist and defaults are used.
func (gf *globalFlags) loadConfig() (cfg model.Config, found bool, err error) {
	cfg, found, err = model.LoadConfig(gf.configPath)
	if err != nil {
		return cfg, found, err
	}
	if gf.logLevel != "" {
		cfg.Log.Level = gf.logLevel
	}
	if gf.logFormat != "" {
		cfg.Log.Format = gf.logFormat
	}
	if gf.logDir != "" {
		cfg.Log.Dir = gf.logDir
	}
	return cfg, found, nil
}

// setupLogging installs the process logger and reports a missing config
// file through it.
func (gf *globalFlags) setupLogging(cfg model.Config, found bool) (*slog.Logger, func() error, error) {
	logger, closeLog, err := util.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		util.Warn("config %s not found, using defaults", gf.configPath)
	}
	return logger, closeLog, nil
}

// changed reports whether the user set the named flag.
func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}
