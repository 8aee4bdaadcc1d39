package posemux

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/banshee-data/trackpose/internal/monitoring"
)

// ErrWriteFailed is returned when the sink writes fewer bytes than a frame line.
var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

var sinkLogf = monitoring.Component("serial-sink")

// SerialSink writes every frame it receives as one CSV line (see EncodeCSV).
// Any io.WriteCloser can back it; OpenSerialSink opens a real port.
type SerialSink struct {
	port    io.WriteCloser
	written uint64
}

// NewSerialSink wraps an already-open port.
func NewSerialSink(port io.WriteCloser) *SerialSink {
	return &SerialSink{port: port}
}

// OpenSerialSink opens the serial device at path with opts.
func OpenSerialSink(path string, opts PortOptions) (*SerialSink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	return NewSerialSink(port), nil
}

// WriteFrame writes a single frame line.
func (s *SerialSink) WriteFrame(f Frame) error {
	line := EncodeCSV(f) + "\n"
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	s.written++
	return nil
}

// Written returns the number of frames written so far.
func (s *SerialSink) Written() uint64 {
	return s.written
}

// Run subscribes to m and writes frames until ctx is cancelled or m is
// closed. Write errors are logged and the frame is skipped.
func (s *SerialSink) Run(ctx context.Context, m *Mux) error {
	id, frames := m.Subscribe()
	defer m.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.WriteFrame(f); err != nil {
				sinkLogf("failed to write frame %d: %v", f.Seq, err)
			}
		}
	}
}

// Close closes the underlying port.
func (s *SerialSink) Close() error {
	return s.port.Close()
}
