// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

import "encoding/binary"

// The codec is a set of pure functions over typed views: it never
// touches live memory, holds no state across calls, and is the sole
// place that knows field offsets for each (command, subfunction). Field
// widths and byte order are centralized here.

// encodeProtocolVersion writes the two-byte (major, minor) pair.
func encodeProtocolVersion(resp *Response) ResponseCode {
	return resp.AppendData([]byte{ProtocolMajor, ProtocolMinor})
}

// encodeSoftwareID writes the compiled software-id bytes verbatim.
func encodeSoftwareID(resp *Response, id []byte) ResponseCode {
	return resp.AppendData(id)
}

// encodeSupportedFeatures writes a single feature bitfield byte.
func encodeSupportedFeatures(resp *Response, features uint8) ResponseCode {
	return resp.AppendData([]byte{features})
}

// decodeDiscoverChallenge reads the 8-byte discover challenge.
func decodeDiscoverChallenge(data []byte) (challenge [8]byte, code ResponseCode) {
	if len(data) != 8 {
		return challenge, CodeInvalidRequest
	}
	copy(challenge[:], data)
	return challenge, CodeOK
}

// encodeDiscoverResponse writes the fixed magic prefix followed by the
// bitwise complement of the challenge.
func encodeDiscoverResponse(resp *Response, challenge [8]byte) ResponseCode {
	if code := resp.AppendData(discoverMagic[:]); code != CodeOK {
		return code
	}
	var complement [8]byte
	for i, b := range challenge {
		complement[i] = ^b
	}
	return resp.AppendData(complement[:])
}

// decodeHeartbeatChallenge reads the two-byte heartbeat challenge.
func decodeHeartbeatChallenge(data []byte) (challenge uint16, code ResponseCode) {
	if len(data) != 2 {
		return 0, CodeInvalidRequest
	}
	return binary.BigEndian.Uint16(data), CodeOK
}

// encodeHeartbeatResponse writes the bitwise complement of the
// challenge.
func encodeHeartbeatResponse(resp *Response, challenge uint16) ResponseCode {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], ^challenge)
	return resp.AppendData(buf[:])
}

// memReadRecord is one decoded [addr][len] entry from a MemoryControl
// Read request.
type memReadRecord struct {
	Addr uint64
	Len  uint16
}

// memWriteRecord is one decoded [addr][len][bytes] entry from a
// MemoryControl Write request.
type memWriteRecord struct {
	Addr  uint64
	Bytes []byte
}

func addrWidthInt(w AddressWidth) int { return int(w) }

func decodeAddr(data []byte, w AddressWidth, bigEndian bool) uint64 {
	n := addrWidthInt(w)
	var buf [8]byte
	if bigEndian {
		copy(buf[8-n:], data[:n])
		return binary.BigEndian.Uint64(buf[:])
	}
	copy(buf[:n], data[:n])
	return binary.LittleEndian.Uint64(buf[:])
}

func encodeAddr(dst []byte, addr uint64, w AddressWidth, bigEndian bool) {
	n := addrWidthInt(w)
	var buf [8]byte
	if bigEndian {
		binary.BigEndian.PutUint64(buf[:], addr)
		copy(dst[:n], buf[8-n:])
	} else {
		binary.LittleEndian.PutUint64(buf[:], addr)
		copy(dst[:n], buf[:n])
	}
}

// decodeMemoryReadRequest parses a MemoryControl/Read payload: a
// concatenation of [addr][len(u16 BE)] records. The payload length must
// be an exact multiple of addrWidth+2. Decoded records are written into
// scratch, which the caller owns and reuses across calls; if the payload
// holds more records than scratch has room for, that is CodeOverflow
// rather than a reallocation.
func decodeMemoryReadRequest(data []byte, w AddressWidth, bigEndianAddr bool, scratch []memReadRecord) ([]memReadRecord, ResponseCode) {
	recordSize := addrWidthInt(w) + 2
	if recordSize == 0 || len(data)%recordSize != 0 {
		return nil, CodeInvalidRequest
	}
	n := len(data) / recordSize
	if n > len(scratch) {
		return nil, CodeOverflow
	}
	records := scratch[:n]
	for i := 0; i < n; i++ {
		off := i * recordSize
		addr := decodeAddr(data[off:], w, bigEndianAddr)
		length := binary.BigEndian.Uint16(data[off+addrWidthInt(w):])
		records[i] = memReadRecord{Addr: addr, Len: length}
	}
	return records, CodeOK
}

// decodeMemoryWriteRequest parses a MemoryControl/Write payload: a
// concatenation of [addr][len(u16 BE)][bytes...] records whose total
// size must exactly consume the payload. Bytes fields are views into
// data, never copies. Decoded records are written into scratch; a
// payload holding more records than scratch has room for is
// CodeOverflow rather than a reallocation.
func decodeMemoryWriteRequest(data []byte, w AddressWidth, bigEndianAddr bool, scratch []memWriteRecord) ([]memWriteRecord, ResponseCode) {
	addrSize := addrWidthInt(w)
	n := 0
	off := 0
	for off < len(data) {
		if off+addrSize+2 > len(data) {
			return nil, CodeInvalidRequest
		}
		addr := decodeAddr(data[off:], w, bigEndianAddr)
		length := binary.BigEndian.Uint16(data[off+addrSize:])
		off += addrSize + 2
		if off+int(length) > len(data) {
			return nil, CodeInvalidRequest
		}
		if n >= len(scratch) {
			return nil, CodeOverflow
		}
		scratch[n] = memWriteRecord{Addr: addr, Bytes: data[off : off+int(length)]}
		n++
		off += int(length)
	}
	if off != len(data) {
		return nil, CodeInvalidRequest
	}
	return scratch[:n], CodeOK
}

// reserveReadRecord reserves room in resp for [addr][len][bytes] and
// writes the addr/len header in place, returning the bytes segment for
// the caller to fill (typically via uncheckedRead) without an
// intermediate copy. Returns CodeOverflow and a nil segment if it would
// not fit; resp is left unmodified in that case.
func reserveReadRecord(resp *Response, addr uint64, length uint16, w AddressWidth, bigEndianAddr bool) ([]byte, ResponseCode) {
	addrSize := addrWidthInt(w)
	rec, code := resp.Reserve(addrSize + 2 + int(length))
	if code != CodeOK {
		return nil, code
	}
	encodeAddr(rec, addr, w, bigEndianAddr)
	binary.BigEndian.PutUint16(rec[addrSize:], length)
	return rec[addrSize+2:], CodeOK
}

// appendWriteAck formats [addr][len] and appends it to resp.
func appendWriteAck(resp *Response, addr uint64, length uint16, w AddressWidth, bigEndianAddr bool) ResponseCode {
	addrSize := addrWidthInt(w)
	rec, code := resp.Reserve(addrSize + 2)
	if code != CodeOK {
		return code
	}
	encodeAddr(rec, addr, w, bigEndianAddr)
	binary.BigEndian.PutUint16(rec[addrSize:], length)
	return CodeOK
}
