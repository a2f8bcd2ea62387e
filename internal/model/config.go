package model

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Navigation NavigationConfig `yaml:"navigation"`
	Obstacle   ObstacleConfig   `yaml:"obstacle"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Signs      SignConfig       `yaml:"signs"`
	Motor      MotorConfig      `yaml:"motor"`
	Board      BoardConfig      `yaml:"board"`
	Vision     VisionConfig     `yaml:"vision"`
	Operator   OperatorConfig   `yaml:"operator"`
	Journal    JournalConfig    `yaml:"journal"`
	LoRa       LoRaConfig       `yaml:"lora"`
	Log        LogConfig        `yaml:"log"`
}

// Line sources accepted by NavigationConfig.LineSource.
const (
	LineSourceGrayscale = "grayscale"
	LineSourceVision    = "vision"
)

// NavigationConfig holds line-following parameters and loop timing.
type NavigationConfig struct {
	LineSource           string        `yaml:"line_source"`             // grayscale or vision
	LineTrackSpeed       float64       `yaml:"line_track_speed"`        // speed while following the ground sensor
	LineTrackAngleOffset float64       `yaml:"line_track_angle_offset"` // steering used for left/right corrections
	BaseSpeed            float64       `yaml:"base_speed"`              // camera line following cruise speed
	MinSpeed             float64       `yaml:"min_speed"`               // floor speed for turns and camera following
	MaxSteering          float64       `yaml:"max_steering"`            // camera line following steering range
	FrameWidth           int           `yaml:"frame_width"`             // camera frame width in pixels
	SnapshotWait         time.Duration `yaml:"snapshot_wait"`           // bounded wait for a vision snapshot per tick
	CommandBuffer        int           `yaml:"command_buffer"`          // operator command channel capacity
	TelemetryBuffer      int           `yaml:"telemetry_buffer"`        // telemetry hub capacity
}

// Invalid distance policies accepted by ObstacleConfig.InvalidPolicy.
const (
	FailOpen   = "fail_open"
	FailClosed = "fail_closed"
)

// ObstacleConfig holds the ultrasonic arbitration thresholds.
type ObstacleConfig struct {
	SafeDistance   float64       `yaml:"safe_distance"`   // >= safe is Safe
	DangerDistance float64       `yaml:"danger_distance"` // < danger is Danger
	SanityCeiling  float64       `yaml:"sanity_ceiling"`  // readings above are Invalid
	AvoidSpeed     float64       `yaml:"avoid_speed"`
	CautionAngle   float64       `yaml:"caution_angle"`
	DangerAngle    float64       `yaml:"danger_angle"`
	CautionSettle  time.Duration `yaml:"caution_settle"`
	DangerSettle   time.Duration `yaml:"danger_settle"`
	InvalidPolicy  string        `yaml:"invalid_policy"` // fail_open or fail_closed
}

// RecoveryConfig tunes the line-loss recovery procedure.
type RecoveryConfig struct {
	SteerAngle   float64       `yaml:"steer_angle"`
	ReverseSpeed float64       `yaml:"reverse_speed"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"` // 0 waits until the line is found or shutdown
}

// SignConfig tunes the sign reactions.
type SignConfig struct {
	StopDwell    time.Duration `yaml:"stop_wait_time"`
	TurnDuration time.Duration `yaml:"turn_duration"`
	TurnAngle    float64       `yaml:"turn_angle"`
	TurnSpeed    float64       `yaml:"turn_speed"`
}

// MotorConfig holds actuator limits and the graceful stop ramp.
type MotorConfig struct {
	MaxSpeed    float64       `yaml:"max_speed"`
	MaxSteering float64       `yaml:"max_steering"`
	RampFactor  float64       `yaml:"ramp_factor"`
	RampStep    time.Duration `yaml:"ramp_step"`
	RampFloor   float64       `yaml:"ramp_floor"`
}

// BoardConfig describes the serial link to the robot HAT microcontroller.
type BoardConfig struct {
	Device        string        `yaml:"device"`
	Baud          int           `yaml:"baud"`
	Timeout       time.Duration `yaml:"timeout"`
	LineReference [3]int        `yaml:"line_reference"` // grayscale ADC value at or below which a channel sees the line
}

// VisionConfig tunes the vision producer.
type VisionConfig struct {
	Interval            time.Duration `yaml:"interval"`             // minimum period between captures
	ConfidenceThreshold float64       `yaml:"confidence_threshold"` // signs below are dropped
}

// OperatorConfig enables operator command sources.
type OperatorConfig struct {
	WSAddr string     `yaml:"ws_addr"` // websocket console address, empty disables
	Token  string     `yaml:"token"`   // bearer token for the console API, empty allows all
	MQTT   MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig configures the MQTT command/telemetry bridge.
type MQTTConfig struct {
	Broker         string `yaml:"broker"` // host:port, empty disables
	ClientID       string `yaml:"client_id"`
	CommandTopic   string `yaml:"command_topic"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	QoS            byte   `yaml:"qos"`
}

// JournalConfig configures the bbolt tick journal.
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables
}

// LoRaConfig configures the LoRaWAN status uplink.
type LoRaConfig struct {
	Device   string        `yaml:"device"` // empty disables
	Baud     int           `yaml:"baud"`
	DevAddr  string        `yaml:"dev_addr"` // 4 bytes hex
	AppSKey  string        `yaml:"app_skey"` // 16 bytes hex
	NwkSKey  string        `yaml:"nwk_skey"` // 16 bytes hex
	FPort    uint8         `yaml:"fport"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Dir    string `yaml:"dir"`    // when set, also write picarx_<timestamp>.log there
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Navigation: NavigationConfig{
			LineSource:           LineSourceGrayscale,
			LineTrackSpeed:       10,
			LineTrackAngleOffset: 20,
			BaseSpeed:            30,
			MinSpeed:             15,
			MaxSteering:          30,
			FrameWidth:           640,
			SnapshotWait:         50 * time.Millisecond,
			CommandBuffer:        16,
			TelemetryBuffer:      64,
		},
		Obstacle: ObstacleConfig{
			SafeDistance:   40,
			DangerDistance: 20,
			SanityCeiling:  1000,
			AvoidSpeed:     40,
			CautionAngle:   30,
			DangerAngle:    -30,
			CautionSettle:  100 * time.Millisecond,
			DangerSettle:   500 * time.Millisecond,
			InvalidPolicy:  FailOpen,
		},
		Recovery: RecoveryConfig{
			SteerAngle:   30,
			ReverseSpeed: 10,
			PollInterval: 5 * time.Millisecond,
		},
		Signs: SignConfig{
			StopDwell:    2 * time.Second,
			TurnDuration: 1 * time.Second,
			TurnAngle:    90,
			TurnSpeed:    15,
		},
		Motor: MotorConfig{
			MaxSpeed:    50,
			MaxSteering: 30,
			RampFactor:  0.8,
			RampStep:    100 * time.Millisecond,
			RampFloor:   5,
		},
		Board: BoardConfig{
			Device:        "/dev/ttyAMA0",
			Baud:          115200,
			Timeout:       200 * time.Millisecond,
			LineReference: [3]int{1000, 1000, 1000},
		},
		Vision: VisionConfig{
			Interval:            33 * time.Millisecond,
			ConfidenceThreshold: 0.7,
		},
		Operator: OperatorConfig{
			MQTT: MQTTConfig{
				ClientID:       "picarnav",
				CommandTopic:   "picarnav/commands",
				TelemetryTopic: "picarnav/telemetry",
				QoS:            1,
			},
		},
		LoRa: LoRaConfig{
			Baud:     9600,
			DevAddr:  "01000001",
			FPort:    10,
			Interval: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig overlays the YAML file at path onto DefaultConfig and
// validates the result. A missing file yields the defaults with found=false.
func LoadConfig(path string) (cfg Config, found bool, err error) {
	cfg = DefaultConfig()
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, false, cfg.Validate()
	}
	if err != nil {
		return cfg, false, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, true, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	o := c.Obstacle
	if o.DangerDistance <= 0 {
		errs = append(errs, errors.New("obstacle.danger_distance must be > 0"))
	}
	if o.DangerDistance >= o.SafeDistance {
		errs = append(errs, fmt.Errorf("obstacle.danger_distance (%.1f) must be below safe_distance (%.1f)", o.DangerDistance, o.SafeDistance))
	}
	if o.SanityCeiling <= o.SafeDistance {
		errs = append(errs, errors.New("obstacle.sanity_ceiling must exceed safe_distance"))
	}
	if o.InvalidPolicy != FailOpen && o.InvalidPolicy != FailClosed {
		errs = append(errs, fmt.Errorf("obstacle.invalid_policy %q must be %s or %s", o.InvalidPolicy, FailOpen, FailClosed))
	}
	if o.CautionSettle < 0 || o.DangerSettle < 0 {
		errs = append(errs, errors.New("obstacle settle durations must not be negative"))
	}
	n := c.Navigation
	if n.LineSource != LineSourceGrayscale && n.LineSource != LineSourceVision {
		errs = append(errs, fmt.Errorf("navigation.line_source %q must be %s or %s", n.LineSource, LineSourceGrayscale, LineSourceVision))
	}
	if n.SnapshotWait <= 0 {
		errs = append(errs, errors.New("navigation.snapshot_wait must be > 0"))
	}
	if n.FrameWidth <= 0 {
		errs = append(errs, errors.New("navigation.frame_width must be > 0"))
	}
	if n.CommandBuffer <= 0 || n.TelemetryBuffer <= 0 {
		errs = append(errs, errors.New("navigation buffers must be > 0"))
	}
	if c.Recovery.PollInterval <= 0 {
		errs = append(errs, errors.New("recovery.poll_interval must be > 0"))
	}
	if c.Recovery.Timeout < 0 {
		errs = append(errs, errors.New("recovery.timeout must not be negative"))
	}
	if c.Signs.StopDwell < 0 || c.Signs.TurnDuration < 0 {
		errs = append(errs, errors.New("sign durations must not be negative"))
	}
	if c.Motor.MaxSpeed <= 0 || c.Motor.MaxSteering <= 0 {
		errs = append(errs, errors.New("motor limits must be > 0"))
	}
	if c.Motor.RampFactor <= 0 || c.Motor.RampFactor >= 1 {
		errs = append(errs, errors.New("motor.ramp_factor must be in (0, 1)"))
	}
	if c.Vision.Interval <= 0 {
		errs = append(errs, errors.New("vision.interval must be > 0"))
	}
	if c.Operator.MQTT.QoS > 2 {
		errs = append(errs, errors.New("operator.mqtt.qos must be 0, 1 or 2"))
	}
	return errors.Join(errs...)
}
