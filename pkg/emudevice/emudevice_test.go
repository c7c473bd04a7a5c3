// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emudevice

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/cinderwire/cinderwire/pkg/corewire"
)

const responseFlag = 0x80

// buildFrame assembles a request frame the same way a real host tool
// would: [cmd][subfn][len(2 BE)][data][crc32(4 BE)].
func buildFrame(cmd corewire.CommandID, subfn uint8, data []byte) []byte {
	frame := make([]byte, 4+len(data)+4)
	frame[0] = byte(cmd) & 0x7F
	frame[1] = subfn
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(data)))
	copy(frame[4:], data)
	crc := corewire.CalculateCRC32(frame[:4+len(data)])
	binary.BigEndian.PutUint32(frame[4+len(data):], crc)
	return frame
}

func readFull(t *testing.T, r io.Reader, buf []byte) {
	t.Helper()
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		if n > 0 {
			off += n
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}

// readResponse blocks until one full response frame has arrived on dev.
func readResponse(t *testing.T, dev *Device) (corewire.ResponseCode, []byte) {
	t.Helper()
	header := make([]byte, 5)
	readFull(t, dev, header)
	if header[0]&responseFlag == 0 {
		t.Fatalf("response cmd byte 0x%02X missing high bit", header[0])
	}
	length := int(binary.BigEndian.Uint16(header[3:5]))
	body := make([]byte, length+4)
	readFull(t, dev, body)
	return corewire.ResponseCode(header[2]), body[:length]
}

func discover(t *testing.T, dev *Device) {
	t.Helper()
	if _, err := dev.Write(buildFrame(corewire.CmdCommControl, 1, make([]byte, 8))); err != nil {
		t.Fatalf("write discover: %v", err)
	}
	code, _ := readResponse(t, dev)
	if code != corewire.CodeOK {
		t.Fatalf("discover response code = %v", code)
	}
}

func TestDevice_DiscoverRoundTrip(t *testing.T) {
	dev, err := New(Options{Tick: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer dev.Close()

	discover(t, dev)
}

func TestDevice_MemoryWriteThenRead(t *testing.T) {
	dev, err := New(Options{MemorySize: 64, Tick: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer dev.Close()

	discover(t, dev)

	addr := dev.BaseAddress()
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	writeReq := make([]byte, 8+2+len(payload))
	binary.LittleEndian.PutUint64(writeReq[0:8], addr)
	binary.BigEndian.PutUint16(writeReq[8:10], uint16(len(payload)))
	copy(writeReq[10:], payload)

	if _, err := dev.Write(buildFrame(corewire.CmdMemoryControl, 2, writeReq)); err != nil {
		t.Fatalf("write memory: %v", err)
	}
	if code, _ := readResponse(t, dev); code != corewire.CodeOK {
		t.Fatalf("memory write code = %v", code)
	}

	readReq := make([]byte, 8+2)
	binary.LittleEndian.PutUint64(readReq[0:8], addr)
	binary.BigEndian.PutUint16(readReq[8:10], uint16(len(payload)))

	if _, err := dev.Write(buildFrame(corewire.CmdMemoryControl, 1, readReq)); err != nil {
		t.Fatalf("write memory read: %v", err)
	}
	code, data := readResponse(t, dev)
	if code != corewire.CodeOK {
		t.Fatalf("memory read code = %v", code)
	}
	// [addr(8)][len(2)][bytes...]
	got := data[10:]
	for i, b := range payload {
		if got[i] != b {
			t.Errorf("byte %d = 0x%02X, want 0x%02X", i, got[i], b)
		}
	}
}

func TestDevice_ForbiddenRangeIsEnforced(t *testing.T) {
	const addr = 0x1000
	dev, err := New(Options{
		Tick:            time.Millisecond,
		ForbiddenRanges: []corewire.AddressRange{{Start: addr, End: addr + 3}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer dev.Close()

	discover(t, dev)

	readReq := make([]byte, 8+2)
	binary.LittleEndian.PutUint64(readReq[0:8], addr)
	binary.BigEndian.PutUint16(readReq[8:10], 4)

	if _, err := dev.Write(buildFrame(corewire.CmdMemoryControl, 1, readReq)); err != nil {
		t.Fatalf("write memory read: %v", err)
	}
	if code, _ := readResponse(t, dev); code != corewire.CodeForbidden {
		t.Errorf("code = %v, want CodeForbidden", code)
	}
}

func TestDevice_CloseUnblocksPendingRead(t *testing.T) {
	dev, err := New(Options{Tick: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := dev.Read(make([]byte, 16))
		errCh <- err
	}()

	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-errCh; err == nil {
		t.Error("expected pending Read to return an error after Close")
	}
}
