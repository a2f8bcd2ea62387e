// Package lora sends compact status uplinks as LoRaWAN 1.0 data frames
// through a serial LoRa modem. Each frame carries one telemetry CSV line.
package lora

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brocaar/lorawan"

	"PicarNav/internal/device"
	"PicarNav/internal/model"
	"PicarNav/internal/parser"
)

// Session holds the ABP session parameters of the robot.
type Session struct {
	DevAddr lorawan.DevAddr
	AppSKey lorawan.AES128Key
	NwkSKey lorawan.AES128Key
	FPort   uint8
}

// ParseSession decodes the hex fields of cfg.
func ParseSession(cfg model.LoRaConfig) (Session, error) {
	var s Session
	if err := s.DevAddr.UnmarshalText([]byte(cfg.DevAddr)); err != nil {
		return s, fmt.Errorf("lora.dev_addr: %w", err)
	}
	if err := s.AppSKey.UnmarshalText([]byte(cfg.AppSKey)); err != nil {
		return s, fmt.Errorf("lora.app_skey: %w", err)
	}
	if err := s.NwkSKey.UnmarshalText([]byte(cfg.NwkSKey)); err != nil {
		return s, fmt.Errorf("lora.nwk_skey: %w", err)
	}
	if cfg.FPort == 0 || cfg.FPort > 223 {
		return s, fmt.Errorf("lora.fport %d must be in 1..223", cfg.FPort)
	}
	s.FPort = cfg.FPort
	return s, nil
}

// Encode builds an unconfirmed data-up frame with an encrypted payload and
// a LoRaWAN 1.0 MIC.
func Encode(s Session, fcnt uint32, payload []byte) ([]byte, error) {
	fport := s.FPort
	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{
			MType: lorawan.UnconfirmedDataUp,
			Major: lorawan.LoRaWANR1,
		},
		MACPayload: &lorawan.MACPayload{
			FHDR: lorawan.FHDR{
				DevAddr: s.DevAddr,
				FCnt:    fcnt,
			},
			FPort:      &fport,
			FRMPayload: []lorawan.Payload{&lorawan.DataPayload{Bytes: payload}},
		},
	}
	if err := phy.EncryptFRMPayload(s.AppSKey); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	if err := phy.SetUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, s.NwkSKey, s.NwkSKey); err != nil {
		return nil, fmt.Errorf("mic: %w", err)
	}
	return phy.MarshalBinary()
}

// Decode verifies and decrypts a frame produced by Encode.
func Decode(s Session, frame []byte) (fcnt uint32, payload []byte, err error) {
	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(frame); err != nil {
		return 0, nil, err
	}
	ok, err := phy.ValidateUplinkDataMIC(lorawan.LoRaWAN1_0, 0, 0, 0, s.NwkSKey, s.NwkSKey)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, errors.New("invalid MIC")
	}
	if err := phy.DecryptFRMPayload(s.AppSKey); err != nil {
		return 0, nil, err
	}
	mac, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return 0, nil, errors.New("not a data frame")
	}
	if mac.FHDR.DevAddr != s.DevAddr {
		return 0, nil, fmt.Errorf("unexpected dev addr %s", mac.FHDR.DevAddr)
	}
	if len(mac.FRMPayload) != 1 {
		return mac.FHDR.FCnt, nil, nil
	}
	data, ok := mac.FRMPayload[0].(*lorawan.DataPayload)
	if !ok {
		return 0, nil, errors.New("unexpected frame payload")
	}
	return mac.FHDR.FCnt, data.Bytes, nil
}

// Uplink is a telemetry sink that forwards a rate-limited subset of tick
// records to the modem as hex-encoded frames, one per line. A record is
// sent when the interval has elapsed or the navigation state or safety
// band changed since the last uplink.
type Uplink struct {
	dev      device.Device
	session  Session
	interval time.Duration
	codec    *parser.CSVParser
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	fcnt    uint32
	last    time.Time
	lastKey string
	sent    uint64
	skipped uint64
}

// NewUplink wraps an open modem device.
func NewUplink(dev device.Device, cfg model.LoRaConfig, logger *slog.Logger) (*Uplink, error) {
	session, err := ParseSession(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uplink{
		dev:      dev,
		session:  session,
		interval: cfg.Interval,
		codec:    parser.NewCSVParser(),
		logger:   logger.With("component", "lora", "dev_addr", session.DevAddr.String()),
		now:      time.Now,
	}, nil
}

// Open opens the modem serial port named in cfg and wraps it.
func Open(cfg model.LoRaConfig, logger *slog.Logger) (*Uplink, error) {
	if _, err := ParseSession(cfg); err != nil {
		return nil, err
	}
	dev, err := device.NewSerialDevice(cfg.Device, cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("[lora] open %s: %w", cfg.Device, err)
	}
	u, err := NewUplink(dev, cfg, logger)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return u, nil
}

// Name implements the telemetry sink interface.
func (u *Uplink) Name() string { return "lora" }

// Publish sends t if it is due.
func (u *Uplink) Publish(t model.Telemetry) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := t.State.String() + "/" + t.Band.String()
	now := u.now()
	if !u.last.IsZero() && now.Sub(u.last) < u.interval && key == u.lastKey {
		u.skipped++
		return nil
	}

	line, err := u.codec.EncodeTelemetry(t)
	if err != nil {
		return err
	}
	frame, err := Encode(u.session, u.fcnt, []byte(line))
	if err != nil {
		return err
	}
	if err := u.dev.WriteLine(strings.ToUpper(hex.EncodeToString(frame))); err != nil {
		return fmt.Errorf("[lora] write: %w", err)
	}
	u.logger.Debug("uplink sent", "fcnt", u.fcnt, "seq", t.Seq, "bytes", len(frame))
	u.fcnt++
	u.last = now
	u.lastKey = key
	u.sent++
	return nil
}

// Stats returns the number of frames sent and records skipped.
func (u *Uplink) Stats() (sent, skipped uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sent, u.skipped
}

// Close closes the modem device.
func (u *Uplink) Close() error { return u.dev.Close() }
