package driver

import (
	"bufio"
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	st := State{On: true, Level: 200, Hue: 300, Saturation: 80, ColorTempK: 2700, Mode: ModeHueSat}
	frame := encodeFrame(serialCmdApply, encodeState(st))

	cmd, payload, err := readFrame(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != serialCmdApply {
		t.Errorf("cmd = 0x%02X, want 0x%02X", cmd, serialCmdApply)
	}
	if !bytes.Equal(payload, encodeState(st)) {
		t.Errorf("payload = %X, want %X", payload, encodeState(st))
	}
}

func TestReadFrameSkipsGarbage(t *testing.T) {
	frame := encodeFrame(serialCmdStatus, []byte{0x00})
	data := append([]byte{0x00, 0xFF, 0x13}, frame...)

	cmd, payload, err := readFrame(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatal(err)
	}
	if cmd != serialCmdStatus {
		t.Errorf("cmd = 0x%02X, want 0x%02X", cmd, serialCmdStatus)
	}
	if len(payload) != 1 || payload[0] != 0x00 {
		t.Errorf("payload = %X", payload)
	}
}

func TestReadFrameChecksumMismatch(t *testing.T) {
	frame := encodeFrame(serialCmdApply, encodeState(State{On: true, Level: 10}))
	frame[len(frame)-1] ^= 0xFF

	if _, _, err := readFrame(bufio.NewReader(bytes.NewReader(frame))); err == nil {
		t.Fatal("corrupted frame accepted")
	}
}

func TestReadFrameTruncated(t *testing.T) {
	frame := encodeFrame(serialCmdApply, encodeState(State{On: true}))
	if _, _, err := readFrame(bufio.NewReader(bytes.NewReader(frame[:len(frame)-3]))); err == nil {
		t.Fatal("truncated frame accepted")
	}
}

func TestEncodeState(t *testing.T) {
	st := State{On: true, Level: 254, Hue: 359, Saturation: 100, ColorTempK: 6535, Mode: ModeColorTemp}
	buf := encodeState(st)

	if len(buf) != 8 {
		t.Fatalf("len = %d, want 8", len(buf))
	}
	if buf[0] != 1 {
		t.Error("on flag not set")
	}
	if buf[1] != 254 {
		t.Errorf("level byte = %d", buf[1])
	}
	if hue := uint16(buf[2]) | uint16(buf[3])<<8; hue != 359 {
		t.Errorf("hue = %d, want 359", hue)
	}
	if buf[4] != 100 {
		t.Errorf("saturation byte = %d", buf[4])
	}
	if kelvin := uint16(buf[5]) | uint16(buf[6])<<8; kelvin != 6535 {
		t.Errorf("kelvin = %d, want 6535", kelvin)
	}
	if buf[7] != byte(ModeColorTemp) {
		t.Errorf("mode byte = %d", buf[7])
	}
}
