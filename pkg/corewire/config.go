// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

import "fmt"

// AddressRange is an inclusive interval [Start, End] of host addresses.
type AddressRange struct {
	Start uint64
	End   uint64
}

// overlaps reports whether the inclusive candidate range [addr, end]
// shares at least one byte with r. Callers pass end = addr+len-1 and treat
// addr+len wrapping as a deny before calling; it is not handled here.
func (r AddressRange) overlaps(addr, end uint64) bool {
	return addr <= r.End && end >= r.Start
}

// AddressWidth is the wire width of an address field, a build-time
// attribute fixed per protocol version handshake.
type AddressWidth uint8

const (
	AddressWidth4 AddressWidth = 4
	AddressWidth8 AddressWidth = 8
)

// Config is the immutable configuration copied into a Handler by New.
// Once passed to New, mutating the original value has no effect.
type Config struct {
	// ForbiddenRanges deny both reads and writes. Capacity is
	// MaxForbiddenRanges; New returns an error if exceeded.
	ForbiddenRanges []AddressRange
	// ReadonlyRanges deny writes only.
	ReadonlyRanges []AddressRange

	// SoftwareID is returned verbatim by GetSoftwareId.
	SoftwareID []byte

	// RxBufferSize and TxBufferSize may lower the buffer sizes below the
	// compile-time maxima (DefaultRxBufferSize/DefaultTxBufferSize); New
	// returns an error if either exceeds them. Zero means "use the default".
	RxBufferSize int
	TxBufferSize int

	// AddressWidth is the wire width of memory addresses (4 or 8). Zero
	// means AddressWidth8.
	AddressWidth AddressWidth
	// BigEndianAddress selects the byte order used to encode addresses.
	// Header length and CRC fields are always big-endian regardless of
	// this flag.
	BigEndianAddress bool

	// HeartbeatTimeoutUs is the liveness window; exceeding it without a
	// fresh heartbeat disconnects the session. Zero means
	// DefaultHeartbeatTimeout.
	HeartbeatTimeoutUs uint64
	// RxSlack bounds how many bytes beyond the in-flight frame the comm
	// handler will buffer while a request is pending. Extra bytes are
	// dropped, never truncating the pending frame.
	RxSlack int

	// FeaturesEnabled selects which of FeatureDataLog/FeatureUserCommand
	// GetSupportedFeatures advertises. DataLogControl and UserCommand
	// requests answer UnsupportedFeature whether or not their bit is set.
	// MemoryControl is always enabled at the wire level.
	FeaturesEnabled uint8
}

// normalized returns a defaulted, validated copy of cfg.
func (cfg Config) normalized() (Config, error) {
	out := cfg

	if len(out.ForbiddenRanges) > MaxForbiddenRanges {
		return Config{}, fmt.Errorf("corewire: %d forbidden ranges exceeds capacity %d", len(out.ForbiddenRanges), MaxForbiddenRanges)
	}
	if len(out.ReadonlyRanges) > MaxReadonlyRanges {
		return Config{}, fmt.Errorf("corewire: %d readonly ranges exceeds capacity %d", len(out.ReadonlyRanges), MaxReadonlyRanges)
	}

	out.ForbiddenRanges = append([]AddressRange(nil), out.ForbiddenRanges...)
	out.ReadonlyRanges = append([]AddressRange(nil), out.ReadonlyRanges...)
	out.SoftwareID = append([]byte(nil), out.SoftwareID...)

	if out.RxBufferSize <= 0 {
		out.RxBufferSize = DefaultRxBufferSize
	}
	if out.TxBufferSize <= 0 {
		out.TxBufferSize = DefaultTxBufferSize
	}
	if out.RxBufferSize > DefaultRxBufferSize || out.TxBufferSize > DefaultTxBufferSize {
		return Config{}, fmt.Errorf("corewire: buffer sizes exceed compile-time maxima %d/%d", DefaultRxBufferSize, DefaultTxBufferSize)
	}
	if out.RxBufferSize <= frameOverhead || out.TxBufferSize <= responseHeaderSize+frameTrailerSize {
		return Config{}, fmt.Errorf("corewire: buffer sizes too small for frame overhead")
	}

	if out.AddressWidth == 0 {
		out.AddressWidth = AddressWidth8
	}
	if out.AddressWidth != AddressWidth4 && out.AddressWidth != AddressWidth8 {
		return Config{}, fmt.Errorf("corewire: unsupported address width %d", out.AddressWidth)
	}

	if out.HeartbeatTimeoutUs == 0 {
		out.HeartbeatTimeoutUs = DefaultHeartbeatTimeout
	}
	if out.RxSlack < 0 {
		out.RxSlack = DefaultRxSlack
	}

	return out, nil
}
