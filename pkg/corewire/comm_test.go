// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

import (
	"encoding/binary"
	"testing"
)

// buildFrame assembles a request frame [cmd][subfn][len(2 BE)][payload][crc32(4 BE)].
func buildFrame(cmd CommandID, subfn uint8, payload []byte) []byte {
	frame := make([]byte, 4+len(payload)+4)
	frame[0] = byte(cmd)
	frame[1] = subfn
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	copy(frame[4:], payload)
	crc := CalculateCRC32(frame[:4+len(payload)])
	binary.BigEndian.PutUint32(frame[4+len(payload):], crc)
	return frame
}

func newTestCommHandler(t *testing.T, cfg Config) (*CommHandler, *Timebase) {
	t.Helper()
	normalized, err := cfg.normalized()
	if err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	var tb Timebase
	return newCommHandler(normalized, &tb), &tb
}

func TestCommHandler_AcceptsValidFrame(t *testing.T) {
	c, _ := newTestCommHandler(t, Config{})
	frame := buildFrame(CmdCommControl, SubDiscover, make([]byte, 8))

	if n := c.ReceiveData(frame); n != len(frame) {
		t.Fatalf("ReceiveData consumed %d, want %d", n, len(frame))
	}
	if !c.RequestReceived() {
		t.Fatal("expected a pending request")
	}
	req := c.Request()
	if req.CommandID != CmdCommControl || req.SubfunctionID != SubDiscover {
		t.Errorf("request = %+v", req)
	}
}

func TestCommHandler_RejectsBadCRC(t *testing.T) {
	c, _ := newTestCommHandler(t, Config{})
	frame := buildFrame(CmdCommControl, SubDiscover, make([]byte, 8))
	frame[len(frame)-1] ^= 0xFF // corrupt the CRC

	c.ReceiveData(frame)
	if c.RequestReceived() {
		t.Fatal("corrupted frame should not produce a pending request")
	}
}

func TestCommHandler_OversizedPayloadIsDiscarded(t *testing.T) {
	c, _ := newTestCommHandler(t, Config{RxBufferSize: 32})
	payload := make([]byte, 64) // larger than the RX buffer can hold
	frame := buildFrame(CmdMemoryControl, SubMemoryRead, payload)

	c.ReceiveData(frame)
	if c.RequestReceived() {
		t.Fatal("oversized frame should be discarded, not accepted")
	}

	// A subsequent well-formed frame must still be recognized: the
	// discard path must resynchronize on frame boundaries, not wedge.
	good := buildFrame(CmdCommControl, SubDiscover, make([]byte, 8))
	c.ReceiveData(good)
	if !c.RequestReceived() {
		t.Fatal("framer did not resynchronize after discarding an oversized frame")
	}
}

func TestCommHandler_SlackIsBufferedAndReplayed(t *testing.T) {
	c, _ := newTestCommHandler(t, Config{RxSlack: 64})

	first := buildFrame(CmdCommControl, SubDiscover, make([]byte, 8))
	second := buildFrame(CmdCommControl, SubHeartbeat, []byte{0, 1})

	// Feed both frames back to back while the first is still pending:
	// the second must be buffered as slack, not dropped or merged.
	c.ReceiveData(append(append([]byte(nil), first...), second...))
	if !c.RequestReceived() {
		t.Fatal("expected first request to be pending")
	}
	if req := c.Request(); req.SubfunctionID != SubDiscover {
		t.Fatalf("first pending request = %+v, want Discover", req)
	}

	c.RequestProcessed()
	if !c.RequestReceived() {
		t.Fatal("slack bytes were not replayed into a second request")
	}
	if req := c.Request(); req.SubfunctionID != SubHeartbeat {
		t.Fatalf("replayed request = %+v, want Heartbeat", req)
	}
}

func TestCommHandler_SendResponseThenTransmitting(t *testing.T) {
	c, _ := newTestCommHandler(t, Config{})
	resp := c.PrepareResponse()
	resp.CommandID = CmdGetInfo
	resp.SubfunctionID = SubGetProtocolVersion
	resp.ResponseCode = CodeOK
	if code := resp.AppendData([]byte{1, 0}); code != CodeOK {
		t.Fatalf("AppendData: %v", code)
	}

	if !c.SendResponse(resp) {
		t.Fatal("SendResponse failed")
	}
	if !c.Transmitting() {
		t.Fatal("expected Transmitting() after SendResponse")
	}

	out := make([]byte, 64)
	n := c.PopData(out)
	if n != responseHeaderSize+2+frameTrailerSize {
		t.Fatalf("PopData returned %d bytes, want %d", n, responseHeaderSize+2+frameTrailerSize)
	}
	if out[0]&0x80 == 0 {
		t.Error("response frame missing high-bit response flag")
	}
	if c.Transmitting() {
		t.Error("expected draining to complete after popping every byte")
	}
}

func TestCommHandler_HeartbeatTimeoutDisconnects(t *testing.T) {
	c, tb := newTestCommHandler(t, Config{HeartbeatTimeoutUs: 1000})
	c.Connect()
	if !c.Connected() {
		t.Fatal("Connect() should set Connected()")
	}

	tb.Step(2000)
	c.process()
	if c.Connected() {
		t.Error("session should have disconnected after exceeding heartbeat timeout")
	}
}

func TestCommHandler_HeartbeatRejectsReplay(t *testing.T) {
	c, _ := newTestCommHandler(t, Config{})
	c.Connect()

	if !c.heartbeat(42) {
		t.Fatal("first heartbeat with a fresh challenge should succeed")
	}
	if c.heartbeat(42) {
		t.Error("replayed heartbeat challenge should be rejected")
	}
	if !c.heartbeat(43) {
		t.Error("a new challenge value should succeed")
	}
}
