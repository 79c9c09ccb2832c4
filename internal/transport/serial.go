package transport

import (
	"fmt"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial carries raw 64-byte blocks over a CDC-ACM serial port.
type Serial struct {
	portName string
	port     serial.Port
	mu       sync.Mutex
}

// OpenSerial opens a serial port in 8N1 mode.
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, &Error{Op: "open", Path: portName, Err: err}
	}
	// USB CDC ACM: assert DTR/RTS so bridge firmware starts forwarding.
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, &Error{Op: "open", Path: portName, Err: err}
	}
	_ = port.ResetInputBuffer()
	return &Serial{portName: portName, port: port}, nil
}

func (s *Serial) Write(block []byte) error {
	data, err := padBlock(block)
	if err != nil {
		return &Error{Op: "write", Path: s.portName, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for written := 0; written < len(data); {
		n, err := s.port.Write(data[written:])
		if err != nil {
			return &Error{Op: "write", Path: s.portName, Err: err}
		}
		written += n
	}
	return nil
}

// Read collects one full block. A read timeout with a partial block is an
// error.
func (s *Serial) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, BlockSize)
	got := 0
	for got < BlockSize {
		n, err := s.port.Read(buf[got:])
		if err != nil {
			return nil, &Error{Op: "read", Path: s.portName, Err: err}
		}
		if n == 0 {
			return nil, &Error{Op: "read", Path: s.portName, Err: fmt.Errorf("timeout after %d of %d bytes", got, BlockSize)}
		}
		got += n
	}
	return buf, nil
}

func (s *Serial) Close() error {
	return s.port.Close()
}

// FindSerial returns the first USB serial port with the given IDs.
func FindSerial(vendorID, productID uint16) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	return matchSerialPort(ports, vendorID, productID)
}

func matchSerialPort(ports []*enumerator.PortDetails, vendorID, productID uint16) (string, error) {
	vid := fmt.Sprintf("%04x", vendorID)
	pid := fmt.Sprintf("%04x", productID)
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: serial %s:%s", ErrNotFound, vid, pid)
}
