package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"PicarNav/internal/device"
	"PicarNav/internal/journal"
	"PicarNav/internal/lora"
	"PicarNav/internal/model"
	"PicarNav/internal/nav"
	"PicarNav/internal/operator"
	"PicarNav/internal/util"
	"PicarNav/internal/vision"
)

// Options select the runtime environment of a System.
type Options struct {
	// Simulate replaces the HAT board with an in-memory SimBoard.
	Simulate bool
	// Seed seeds the simulated line drift.
	Seed int64
	// PTYDir, when set with Simulate, serves the SimBoard behind a socat
	// PTY pair created in this directory so the real serial stack is used.
	PTYDir string
	// Script replays a YAML vision script as the camera.
	Script string
	// FrameDir replays the images of a directory as the camera.
	FrameDir string
	// Loop restarts the script or frame directory at the end.
	Loop bool
}

// System assembles the robot from configuration: board link, actuators,
// sensors, the navigation machine, the vision producer, operator command
// sources and telemetry sinks.
type System struct {
	cfg    model.Config
	opts   Options
	logger *slog.Logger

	Robot     *Robot
	Telemetry *Telemetry
	Queue     *operator.Queue
	Console   *operator.Server
	MQTT      *operator.MQTT
	Journal   *journal.Store
	Uplink    *lora.Uplink
	Sim       *device.SimBoard

	board  *device.Board
	motor  *device.Motor
	socat  *util.SocatManager
	simDev device.Device

	closers []func()

	started   bool
	startLock sync.Mutex
}

// NewSystem builds every component named by cfg. On error, whatever was
// already opened is closed again.
func NewSystem(ctx context.Context, cfg model.Config, opts Options, logger *slog.Logger) (_ *System, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &System{cfg: cfg, opts: opts, logger: logger.With("component", "system")}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	if err := s.openBoard(ctx); err != nil {
		return nil, err
	}
	s.motor = device.NewMotor(s.board, cfg.Motor, logger)
	ranger := device.NewUltrasonic(s.board)

	var line nav.LineSensor
	if cfg.Navigation.LineSource == model.LineSourceGrayscale {
		line = device.NewGrayscale(s.board, cfg.Board.LineReference)
	}

	camera, lines, signs, err := s.openCamera()
	if err != nil {
		return nil, err
	}
	if camera == nil && cfg.Navigation.LineSource == model.LineSourceVision {
		return nil, errors.New("navigation.line_source is vision but no camera source was given")
	}

	s.Queue = operator.NewQueue(cfg.Navigation.CommandBuffer)
	s.Telemetry = NewTelemetry(cfg.Navigation.TelemetryBuffer, logger)
	if err := s.openSinks(); err != nil {
		return nil, err
	}

	machine := nav.NewMachine(cfg, s.motor, ranger, line, nav.WithLogger(logger.With("component", "nav")))
	s.Robot = NewRobot(cfg, RobotDeps{
		Machine:   machine,
		Motor:     s.motor,
		Camera:    camera,
		Lines:     lines,
		Signs:     signs,
		Commands:  s.Queue.C(),
		Telemetry: s.Telemetry,
		Logger:    logger,
	})
	return s, nil
}

func (s *System) openBoard(ctx context.Context) error {
	cfg := s.cfg.Board
	if !s.opts.Simulate {
		b, err := device.OpenBoard(cfg)
		if err != nil {
			return fmt.Errorf("open board %s: %w", cfg.Device, err)
		}
		s.board = b
		s.closers = append(s.closers, func() { _ = b.Close() })
		return nil
	}

	s.Sim = device.NewSimBoard(s.opts.Seed)
	if s.opts.PTYDir == "" {
		s.board = device.NewBoard(s.Sim, cfg.Timeout)
		s.closers = append(s.closers, func() { _ = s.board.Close() })
		return nil
	}

	s.socat = util.NewSocatManager(s.logger)
	s.closers = append(s.closers, s.socat.Cleanup)
	robotEnd := filepath.Join(s.opts.PTYDir, "picarx-hat")
	simEnd := filepath.Join(s.opts.PTYDir, "picarx-sim")
	if err := s.socat.CreatePair(ctx, robotEnd, simEnd); err != nil {
		return err
	}
	simDev, err := device.NewSerialDevice(simEnd, cfg.Baud)
	if err != nil {
		return err
	}
	s.simDev = simDev
	s.closers = append(s.closers, func() { _ = simDev.Close() })

	cfg.Device = robotEnd
	b, err := device.OpenBoard(cfg)
	if err != nil {
		return err
	}
	s.board = b
	s.closers = append(s.closers, func() { _ = b.Close() })
	s.logger.Info("simulated board behind virtual serial pair", "robot", robotEnd, "sim", simEnd)
	return nil
}

func (s *System) openCamera() (vision.Camera, vision.LineDetector, vision.SignDetector, error) {
	detectors := vision.Annotated{
		Line:  vision.NewThresholdLineDetector(),
		Signs: vision.NewColorSignDetector(),
	}
	switch {
	case s.opts.Script != "":
		steps, err := vision.LoadScript(s.opts.Script)
		if err != nil {
			return nil, nil, nil, err
		}
		return vision.NewScripted(steps, s.opts.Loop), detectors, detectors, nil
	case s.opts.FrameDir != "":
		cam, err := vision.NewDirCamera(s.opts.FrameDir, s.opts.Loop)
		if err != nil {
			return nil, nil, nil, err
		}
		return cam, detectors, detectors, nil
	default:
		return nil, nil, nil, nil
	}
}

func (s *System) openSinks() error {
	cfg := s.cfg
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		s.Journal = j
		s.closers = append(s.closers, func() { _ = j.Close() })
		s.Telemetry.Add(j)
	}
	if cfg.Operator.WSAddr != "" {
		opts := []operator.Option{operator.WithStatus(s.Status), operator.WithToken(cfg.Operator.Token)}
		if s.Journal != nil {
			opts = append(opts, operator.WithHistory(s.Journal))
		}
		s.Console = operator.NewServer(cfg.Operator.WSAddr, s.Queue, s.logger, opts...)
		s.Telemetry.Add(s.Console)
	}
	if cfg.Operator.MQTT.Broker != "" {
		m := operator.NewMQTT(cfg.Operator.MQTT, s.Queue, s.logger)
		if err := m.Connect(); err != nil {
			return err
		}
		s.MQTT = m
		s.closers = append(s.closers, m.Close)
		s.Telemetry.Add(m)
	}
	if cfg.LoRa.Device != "" {
		u, err := lora.Open(cfg.LoRa, s.logger)
		if err != nil {
			return err
		}
		s.Uplink = u
		s.closers = append(s.closers, func() { _ = u.Close() })
		s.Telemetry.Add(u)
	}
	return nil
}

// Status is served on the operator console.
func (s *System) Status() any {
	st := map[string]any{
		"telemetry_dropped": s.Telemetry.Dropped(),
		"telemetry_failed":  s.Telemetry.Failed(),
	}
	if s.Robot != nil {
		st["run_id"] = s.Robot.RunID
		st["state"] = s.Robot.State().String()
		st["stats"] = s.Robot.Stats()
	}
	if s.motor != nil {
		speed, steering := s.motor.State()
		st["speed"] = speed
		st["steering"] = steering
	}
	if s.Console != nil {
		st["console_clients"] = s.Console.Clients()
	}
	return st
}

// Run starts the sinks and the console, drives until ctx is cancelled or
// the robot fails, then stops everything in reverse order.
func (s *System) Run(ctx context.Context) error {
	s.startLock.Lock()
	if s.started {
		s.startLock.Unlock()
		return errors.New("system already started")
	}
	s.started = true
	s.startLock.Unlock()
	defer s.close()

	var bg sync.WaitGroup
	simCtx, stopSim := context.WithCancel(context.Background())
	if s.simDev != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := device.Serve(simCtx, s.simDev, s.Sim); err != nil && simCtx.Err() == nil {
				s.logger.Error("simulated board stopped", "err", err)
			}
		}()
	}

	s.Telemetry.Start()
	if s.Console != nil {
		if err := s.Console.Start(); err != nil {
			stopSim()
			bg.Wait()
			s.Telemetry.Stop()
			return err
		}
	}
	s.logger.Info("system started", "run", s.Robot.RunID, "simulate", s.opts.Simulate)

	err := s.Robot.Run(ctx)

	if s.Console != nil {
		s.Console.Stop()
	}
	s.Telemetry.Stop()
	stopSim()
	bg.Wait()
	s.logger.Info("system stopped", "run", s.Robot.RunID, "telemetry_dropped", s.Telemetry.Dropped())
	return err
}

// close releases devices and sinks in reverse order of opening.
func (s *System) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
