// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cinderwire/cinderwire/pkg/corewire"
)

// This is the host-side half of the wire protocol: corewire's device
// core only ever decodes requests and encodes responses, so assembling
// a request and parsing a response back out lives here instead, built
// on the core's exported CalculateCRC32 rather than duplicating it.

const responseFlag = 0x80

// buildRequestFrame assembles [cmd][subfn][len(2 BE)][data][crc32(4 BE)].
func buildRequestFrame(cmd corewire.CommandID, subfn uint8, data []byte) []byte {
	frame := make([]byte, 4+len(data)+4)
	frame[0] = byte(cmd) & 0x7F
	frame[1] = subfn
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(data)))
	copy(frame[4:], data)
	crc := corewire.CalculateCRC32(frame[:4+len(data)])
	binary.BigEndian.PutUint32(frame[4+len(data):], crc)
	return frame
}

// response is a parsed response frame.
type response struct {
	CommandID     corewire.CommandID
	SubfunctionID uint8
	Code          corewire.ResponseCode
	Data          []byte
}

// readResponseFrame blocks on r until one full, CRC-valid response
// frame has been read, mirroring the device-side RX framer's byte-at-a
// time state machine but for the response header shape (cmd with the
// high bit set, subfn, response_code, len).
func readResponseFrame(r io.Reader) (response, error) {
	header := make([]byte, 5)
	if err := readFull(r, header); err != nil {
		return response{}, fmt.Errorf("corewire: read response header: %w", err)
	}
	if header[0]&responseFlag == 0 {
		return response{}, fmt.Errorf("corewire: response cmd byte 0x%02X missing high bit", header[0])
	}
	length := int(binary.BigEndian.Uint16(header[3:5]))

	body := make([]byte, length+4)
	if err := readFull(r, body); err != nil {
		return response{}, fmt.Errorf("corewire: read response body: %w", err)
	}

	full := make([]byte, 0, len(header)+length)
	full = append(full, header...)
	full = append(full, body[:length]...)
	crc := corewire.CalculateCRC32(full)
	wantCRC := binary.BigEndian.Uint32(body[length:])
	if crc != wantCRC {
		return response{}, fmt.Errorf("corewire: response CRC mismatch: got %08X want %08X", crc, wantCRC)
	}

	return response{
		CommandID:     corewire.CommandID(header[0] &^ responseFlag),
		SubfunctionID: header[1],
		Code:          corewire.ResponseCode(header[2]),
		Data:          body[:length],
	}, nil
}

func readFull(r io.Reader, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		if n > 0 {
			off += n
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseHexUint64 parses addr as a bare hex string, with or without a
// leading "0x".
func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strconv.ParseUint(s, 16, 64)
}

// parseHexBytes parses a hex string into bytes, rejecting odd lengths.
func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string %q has odd length", s)
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[i*2:i*2+2], err)
		}
		out[i] = byte(v)
	}
	return out, nil
}
