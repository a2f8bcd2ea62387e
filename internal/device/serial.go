package device

import (
	"bufio"
	"fmt"
	"sync"
	"time"

	serial "go.bug.st/serial"
)

type readResult struct {
	line string
	err  error
}

// SerialDevice implements Device using go.bug.st/serial.
type SerialDevice struct {
	mu   sync.Mutex // guards port and r
	port serial.Port
	r    *bufio.Reader
	dev  string
	baud int

	rmu     sync.Mutex // serializes readers
	pending chan readResult
}

// NewSerialDevice creates and opens a serial device with the given path and baudrate.
func NewSerialDevice(dev string, baud int) (*SerialDevice, error) {
	s := &SerialDevice{dev: dev, baud: baud}
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open ensures that the serial port is ready for use.
func (s *SerialDevice) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return nil
	}
	p, err := serial.Open(s.dev, &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial %s: %w", s.dev, err)
	}
	s.port = p
	s.r = bufio.NewReader(p)
	s.rmu.Lock()
	s.pending = nil
	s.rmu.Unlock()
	return nil
}

// Close closes the underlying serial connection.
func (s *SerialDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// ReadLine reads a single line from the serial port, blocking until newline
// or timeout. A read that timed out stays pending and its line is returned
// by the next call, so replies are never lost or reordered.
func (s *SerialDevice) ReadLine(timeout time.Duration) (string, error) {
	s.mu.Lock()
	r := s.r
	open := s.port != nil
	s.mu.Unlock()
	if !open {
		return "", ErrClosed
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()
	if s.pending == nil {
		ch := make(chan readResult, 1)
		go func() {
			line, err := r.ReadString('\n')
			ch <- readResult{line, err}
		}()
		s.pending = ch
	}

	if timeout <= 0 {
		res := <-s.pending
		s.pending = nil
		return res.line, res.err
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case res := <-s.pending:
		s.pending = nil
		return res.line, res.err
	case <-t.C:
		return "", ErrReadTimeout
	}
}

// WriteLine writes a single line followed by '\n' to the serial port.
func (s *SerialDevice) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return ErrClosed
	}
	_, err := s.port.Write(append([]byte(line), '\n'))
	return err
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
