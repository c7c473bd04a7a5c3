// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncodeDecodeDiscoverChallenge(t *testing.T) {
	challenge := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	var resp Response
	resp.reset(make([]byte, 64))
	if code := encodeDiscoverResponse(&resp, challenge); code != CodeOK {
		t.Fatalf("encodeDiscoverResponse: %v", code)
	}
	if !bytes.Equal(resp.Data[:4], discoverMagic[:]) {
		t.Errorf("magic prefix = % X, want % X", resp.Data[:4], discoverMagic[:])
	}
	for i, b := range challenge {
		if resp.Data[4+i] != ^b {
			t.Errorf("complement[%d] = 0x%02X, want 0x%02X", i, resp.Data[4+i], ^b)
		}
	}

	decoded, code := decodeDiscoverChallenge(challenge[:])
	if code != CodeOK {
		t.Fatalf("decodeDiscoverChallenge: %v", code)
	}
	if decoded != challenge {
		t.Errorf("decoded challenge = %v, want %v", decoded, challenge)
	}
}

func TestDecodeDiscoverChallenge_WrongLength(t *testing.T) {
	if _, code := decodeDiscoverChallenge([]byte{1, 2, 3}); code != CodeInvalidRequest {
		t.Errorf("code = %v, want CodeInvalidRequest", code)
	}
}

func TestHeartbeatChallengeRoundTrip(t *testing.T) {
	var resp Response
	resp.reset(make([]byte, 8))
	if code := encodeHeartbeatResponse(&resp, 0x1234); code != CodeOK {
		t.Fatalf("encodeHeartbeatResponse: %v", code)
	}
	got := binary.BigEndian.Uint16(resp.Data)
	if want := uint16(^uint16(0x1234)); got != want {
		t.Errorf("heartbeat complement = 0x%04X, want 0x%04X", got, want)
	}
}

func TestAddrEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		width     AddressWidth
		bigEndian bool
		addr      uint64
	}{
		{"8-byte big-endian", AddressWidth8, true, 0x0123456789ABCDEF},
		{"8-byte little-endian", AddressWidth8, false, 0x0123456789ABCDEF},
		{"4-byte big-endian", AddressWidth4, true, 0xDEADBEEF},
		{"4-byte little-endian", AddressWidth4, false, 0xDEADBEEF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, addrWidthInt(tt.width))
			encodeAddr(buf, tt.addr, tt.width, tt.bigEndian)
			got := decodeAddr(buf, tt.width, tt.bigEndian)
			if got != tt.addr {
				t.Errorf("round trip = 0x%X, want 0x%X", got, tt.addr)
			}
		})
	}
}

func TestDecodeMemoryReadRequest(t *testing.T) {
	scratch := make([]memReadRecord, 4)

	// Two records: addr 0x10 len 4, addr 0x20 len 8, 8-byte big-endian addr.
	data := make([]byte, 2*(8+2))
	encodeAddr(data[0:8], 0x10, AddressWidth8, true)
	binary.BigEndian.PutUint16(data[8:10], 4)
	encodeAddr(data[10:18], 0x20, AddressWidth8, true)
	binary.BigEndian.PutUint16(data[18:20], 8)

	records, code := decodeMemoryReadRequest(data, AddressWidth8, true, scratch)
	if code != CodeOK {
		t.Fatalf("decode: %v", code)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Addr != 0x10 || records[0].Len != 4 {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Addr != 0x20 || records[1].Len != 8 {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestDecodeMemoryReadRequest_MisalignedLength(t *testing.T) {
	scratch := make([]memReadRecord, 4)
	data := make([]byte, 7) // not a multiple of addrWidth(8)+2
	if _, code := decodeMemoryReadRequest(data, AddressWidth8, true, scratch); code != CodeInvalidRequest {
		t.Errorf("code = %v, want CodeInvalidRequest", code)
	}
}

func TestDecodeMemoryReadRequest_Overflow(t *testing.T) {
	scratch := make([]memReadRecord, 1) // room for exactly one record
	data := make([]byte, 2*(8+2))       // two records worth of payload
	if _, code := decodeMemoryReadRequest(data, AddressWidth8, true, scratch); code != CodeOverflow {
		t.Errorf("code = %v, want CodeOverflow", code)
	}
}

func TestDecodeMemoryWriteRequest(t *testing.T) {
	scratch := make([]memWriteRecord, 4)

	payload := []byte{0xDE, 0xAD}
	data := make([]byte, 4+2+len(payload))
	encodeAddr(data[0:4], 0x40, AddressWidth4, true)
	binary.BigEndian.PutUint16(data[4:6], uint16(len(payload)))
	copy(data[6:], payload)

	records, code := decodeMemoryWriteRequest(data, AddressWidth4, true, scratch)
	if code != CodeOK {
		t.Fatalf("decode: %v", code)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Addr != 0x40 || !bytes.Equal(records[0].Bytes, payload) {
		t.Errorf("records[0] = %+v", records[0])
	}
}

func TestDecodeMemoryWriteRequest_TruncatedBytes(t *testing.T) {
	scratch := make([]memWriteRecord, 4)
	data := make([]byte, 4+2+1) // room for only 1 payload byte after the header
	encodeAddr(data[0:4], 0x40, AddressWidth4, true)
	binary.BigEndian.PutUint16(data[4:6], 5) // claims 5 bytes follow, only 1 present
	if _, code := decodeMemoryWriteRequest(data, AddressWidth4, true, scratch); code != CodeInvalidRequest {
		t.Errorf("code = %v, want CodeInvalidRequest", code)
	}
}

func TestDecodeMemoryWriteRequest_Overflow(t *testing.T) {
	scratch := make([]memWriteRecord, 1)
	recordSize := 4 + 2
	data := make([]byte, 2*recordSize)
	encodeAddr(data[0:4], 0x1, AddressWidth4, true)
	binary.BigEndian.PutUint16(data[4:6], 0)
	encodeAddr(data[6:10], 0x2, AddressWidth4, true)
	binary.BigEndian.PutUint16(data[10:12], 0)
	if _, code := decodeMemoryWriteRequest(data, AddressWidth4, true, scratch); code != CodeOverflow {
		t.Errorf("code = %v, want CodeOverflow", code)
	}
}

func TestReserveReadRecord_Overflow(t *testing.T) {
	var resp Response
	resp.reset(make([]byte, 4)) // too small for an 8-byte addr + 2-byte len
	if _, code := reserveReadRecord(&resp, 0, 1, AddressWidth8, true); code != CodeOverflow {
		t.Errorf("code = %v, want CodeOverflow", code)
	}
	if len(resp.Data) != 0 {
		t.Errorf("resp.Data mutated on overflow: %v", resp.Data)
	}
}

func TestAppendWriteAck(t *testing.T) {
	var resp Response
	resp.reset(make([]byte, 16))
	if code := appendWriteAck(&resp, 0x99, 3, AddressWidth4, true); code != CodeOK {
		t.Fatalf("appendWriteAck: %v", code)
	}
	if len(resp.Data) != 6 {
		t.Fatalf("len(resp.Data) = %d, want 6", len(resp.Data))
	}
	if got := decodeAddr(resp.Data[:4], AddressWidth4, true); got != 0x99 {
		t.Errorf("addr = 0x%X, want 0x99", got)
	}
	if got := binary.BigEndian.Uint16(resp.Data[4:6]); got != 3 {
		t.Errorf("len = %d, want 3", got)
	}
}
