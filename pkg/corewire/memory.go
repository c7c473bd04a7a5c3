// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

import "unsafe"

// memoryPolicy enforces the forbidden/readonly range rules over
// arbitrary host addresses. It performs a linear scan over a
// small, fixed-capacity list of ranges; no sorting or indexing is
// required at this scale.
type memoryPolicy struct {
	forbidden []AddressRange
	readonly  []AddressRange
}

func newMemoryPolicy(cfg Config) memoryPolicy {
	return memoryPolicy{forbidden: cfg.ForbiddenRanges, readonly: cfg.ReadonlyRanges}
}

// checkRead reports whether a read of length bytes at addr is permitted.
// addr+length overflow is treated as a deny.
func (p *memoryPolicy) checkRead(addr uint64, length uint64) ResponseCode {
	if length == 0 {
		return CodeOK
	}
	end := addr + length
	if end < addr {
		return CodeForbidden
	}
	for _, r := range p.forbidden {
		if r.overlaps(addr, end-1) {
			return CodeForbidden
		}
	}
	return CodeOK
}

// checkWrite reports whether a write of length bytes at addr is
// permitted: forbidden ranges deny writes too, readonly ranges deny
// writes only. Forbidden takes precedence over readonly.
func (p *memoryPolicy) checkWrite(addr uint64, length uint64) ResponseCode {
	if length == 0 {
		return CodeOK
	}
	end := addr + length
	if end < addr {
		return CodeForbidden
	}
	for _, r := range p.forbidden {
		if r.overlaps(addr, end-1) {
			return CodeForbidden
		}
	}
	for _, r := range p.readonly {
		if r.overlaps(addr, end-1) {
			return CodeForbidden
		}
	}
	return CodeOK
}

// uncheckedRead copies length bytes starting at the absolute host
// address addr into dst. It is the sole primitive through which the core
// touches live memory; the memory policy above is the only guard. There
// is no provenance tracking: a caller that bypasses the policy can read
// or corrupt arbitrary process memory, which is the point of a live
// debugging tool.
func uncheckedRead(addr uint64, dst []byte) {
	if len(dst) == 0 {
		return
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(dst))
	copy(dst, src)
}

// uncheckedWrite copies src into the length bytes starting at the
// absolute host address addr.
func uncheckedWrite(addr uint64, src []byte) {
	if len(src) == 0 {
		return
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(src))
	copy(dst, src)
}
