package main

import (
	"github.com/spf13/cobra"

	"PicarNav/internal/core"
	"PicarNav/internal/model"
	"PicarNav/internal/util"
)

// runFlags override configuration fields for a single run.
type runFlags struct {
	board      string
	baud       int
	lineSource string
	wsAddr     string
	token      string
	broker     string
	journal    string
	lora       string

	script string
	frames string
	loop   bool

	seed int64
	pty  string
}

func (rf *runFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&rf.board, "board", "", "robot HAT serial device")
	f.IntVar(&rf.baud, "baud", 0, "robot HAT baud rate")
	f.StringVar(&rf.lineSource, "line-source", "", "line source (grayscale, vision)")
	f.StringVar(&rf.wsAddr, "ws", "", "operator console listen address")
	f.StringVar(&rf.token, "token", "", "operator console bearer token")
	f.StringVar(&rf.broker, "mqtt", "", "MQTT broker host:port")
	f.StringVar(&rf.journal, "journal", "", "tick journal file")
	f.StringVar(&rf.lora, "lora", "", "LoRa modem serial device")
	f.StringVar(&rf.script, "script", "", "replay a YAML vision script as the camera")
	f.StringVar(&rf.frames, "frames", "", "replay the images of a directory as the camera")
	f.BoolVar(&rf.loop, "loop", false, "restart the script or frames at the end")
}

// apply copies the flags the user set into cfg.
func (rf *runFlags) apply(cmd *cobra.Command, cfg *model.Config) {
	if changed(cmd, "board") {
		cfg.Board.Device = rf.board
	}
	if changed(cmd, "baud") {
		cfg.Board.Baud = rf.baud
	}
	if changed(cmd, "line-source") {
		cfg.Navigation.LineSource = rf.lineSource
	}
	if changed(cmd, "ws") {
		cfg.Operator.WSAddr = rf.wsAddr
	}
	if changed(cmd, "token") {
		cfg.Operator.Token = rf.token
	}
	if changed(cmd, "mqtt") {
		cfg.Operator.MQTT.Broker = rf.broker
	}
	if changed(cmd, "journal") {
		cfg.Journal.Path = rf.journal
	}
	if changed(cmd, "lora") {
		cfg.LoRa.Device = rf.lora
	}
}

func (rf *runFlags) options(simulate bool) core.Options {
	return core.Options{
		Simulate: simulate,
		Seed:     rf.seed,
		PTYDir:   rf.pty,
		Script:   rf.script,
		FrameDir: rf.frames,
		Loop:     rf.loop,
	}
}

func newRunCmd(gf *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the robot on the real hardware",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drive(cmd, gf, rf, rf.options(false))
		},
	}
	rf.register(cmd)
	return cmd
}

func newSimulateCmd(gf *globalFlags) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive against the simulated board",
		Long: `simulate runs the full navigation stack against an in-memory robot HAT
that models the line under the sensor bar and a periodic obstacle. With
--pty the simulator is served behind a socat virtual serial pair so the
serial driver is exercised too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drive(cmd, gf, rf, rf.options(true))
		},
	}
	rf.register(cmd)
	cmd.Flags().Int64Var(&rf.seed, "seed", 1, "simulated line drift seed")
	cmd.Flags().StringVar(&rf.pty, "pty", "", "serve the simulator behind a socat PTY pair in this directory")
	return cmd
}

func drive(cmd *cobra.Command, gf *globalFlags, rf *runFlags, opts core.Options) error {
	cfg, found, err := gf.loadConfig()
	if err != nil {
		return err
	}
	rf.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := gf.setupLogging(cfg, found)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	ctx := cmd.Context()
	sys, err := core.NewSystem(ctx, cfg, opts, logger)
	if err != nil {
		util.Error("startup failed: %v", err)
		return err
	}
	util.Info("run %s starting (simulate=%t, line source %s)", sys.Robot.RunID, opts.Simulate, cfg.Navigation.LineSource)
	if err := sys.Run(ctx); err != nil {
		util.Error("run %s failed: %v", sys.Robot.RunID, err)
		return err
	}
	util.Info("run %s finished", sys.Robot.RunID)
	return nil
}
