package driver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Wire protocol of the external LED controller. Frames are
// SOF + length + command + payload + XOR checksum, checksum taken
// over length, command and payload.
const (
	serialSOF byte = 0x7E

	serialCmdApply  byte = 0x01 // host -> controller, full lamp state
	serialCmdStatus byte = 0x81 // controller -> host, status(1)

	serialMaxPayload = 64
)

// SerialBackend drives an external LED controller board over UART.
type SerialBackend struct {
	port   serial.Port
	reader *bufio.Reader
	logger *slog.Logger

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSerialBackend(portName string, baudRate int, logger *slog.Logger) (*SerialBackend, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("serial backend: open %s: %w", portName, err)
	}
	s := &SerialBackend{
		port:   port,
		reader: bufio.NewReader(port),
		logger: logger,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	logger.Info("serial backend ready", "port", portName, "baud", baudRate)
	return s, nil
}

func (s *SerialBackend) Apply(st State) error {
	frame := encodeFrame(serialCmdApply, encodeState(st))
	s.writeMu.Lock()
	_, err := s.port.Write(frame)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("serial backend: write: %w", err)
	}
	s.logger.Debug("serial apply", "len", len(frame))
	return nil
}

func (s *SerialBackend) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	err := s.port.Close()
	s.wg.Wait()
	return err
}

// readLoop drains controller frames. The controller only ever sends
// status frames; non-zero statuses are logged.
func (s *SerialBackend) readLoop() {
	defer s.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-s.done:
			return
		default:
		}

		cmd, payload, err := readFrame(s.reader)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				if err != io.EOF && !strings.Contains(err.Error(), "closed") {
					s.logger.Error("serial backend read", "err", err)
				}
				select {
				case <-time.After(backoff):
				case <-s.done:
					return
				}
				if backoff < maxBackoff {
					backoff *= 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
				}
				continue
			}
		}
		backoff = 10 * time.Millisecond

		switch cmd {
		case serialCmdStatus:
			if len(payload) >= 1 && payload[0] != 0 {
				s.logger.Warn("controller status", "status", payload[0])
			}
		default:
			s.logger.Debug("controller frame ignored", "cmd", fmt.Sprintf("0x%02X", cmd))
		}
	}
}

// encodeState packs a State into the 8-byte apply payload:
// on(1) + level(1) + hue(2 LE) + saturation(1) + kelvin(2 LE) + mode(1).
func encodeState(st State) []byte {
	buf := make([]byte, 8)
	if st.On {
		buf[0] = 1
	}
	buf[1] = st.Level
	binary.LittleEndian.PutUint16(buf[2:4], st.Hue)
	buf[4] = st.Saturation
	binary.LittleEndian.PutUint16(buf[5:7], st.ColorTempK)
	buf[7] = byte(st.Mode)
	return buf
}

func encodeFrame(cmd byte, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, serialSOF, byte(len(payload)), cmd)
	frame = append(frame, payload...)
	frame = append(frame, xorChecksum(frame[1:]))
	return frame
}

// readFrame scans to the next SOF and decodes one frame.
func readFrame(r *bufio.Reader) (cmd byte, payload []byte, err error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		if b == serialSOF {
			break
		}
	}

	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	length := int(header[0])
	if length > serialMaxPayload {
		return 0, nil, fmt.Errorf("frame payload too long: %d", length)
	}
	cmd = header[1]

	rest := make([]byte, length+1)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, err
	}
	payload = rest[:length]

	sum := xorChecksum(header) ^ xorChecksum(payload)
	if sum != rest[length] {
		return 0, nil, fmt.Errorf("frame checksum mismatch: got 0x%02X, want 0x%02X", rest[length], sum)
	}
	return cmd, payload, nil
}

func xorChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum ^= b
	}
	return sum
}
