// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package emudevice hosts an in-process corewire core against a
// synthetic memory region, so host tooling can be exercised end to end
// without real hardware attached. It is the one place in this module
// that constructs the live addresses corewire's unchecked memory
// primitive operates on.
package emudevice

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/cinderwire/cinderwire/pkg/corewire"
)

type writeRequest struct {
	data   []byte
	result chan int
}

type readResult struct {
	n   int
	err error
}

type readRequest struct {
	buf    []byte
	result chan readResult
}

// Device is an emulated corewire target: a fixed backing memory region
// plus a corewire.Handler. A single internal goroutine owns the
// Handler and every read/write/tick is funneled through channels, so
// Process is never invoked concurrently with itself from two
// goroutines, matching the core's single-threaded calling convention.
// It implements io.Reader/io.Writer so it can stand in for a
// transport.Connection in tests or local demos.
type Device struct {
	handler *corewire.Handler
	memory  []byte

	writeCh chan writeRequest
	readCh  chan readRequest
	stop    chan struct{}
	done    chan struct{}
}

// Options configures a Device.
type Options struct {
	// MemorySize is the size of the synthetic backing region the
	// device exposes for MemoryControl reads/writes.
	MemorySize int
	// SoftwareID is returned verbatim by GetSoftwareId.
	SoftwareID []byte
	// Tick is how often the internal goroutine calls Handler.Process.
	// Defaults to 1ms, matching a typical embedded super-loop period.
	Tick time.Duration
	// FeaturesEnabled is forwarded to corewire.Config.FeaturesEnabled.
	FeaturesEnabled uint8
	// ForbiddenRanges and ReadonlyRanges are forwarded verbatim into the
	// corewire.Config the emulated device is built from, so --emulate
	// enforces the same memory policy a real device would.
	ForbiddenRanges []corewire.AddressRange
	ReadonlyRanges  []corewire.AddressRange
}

// New allocates a backing memory region and a corewire core over it,
// and starts the goroutine that owns both.
func New(opts Options) (*Device, error) {
	if opts.MemorySize <= 0 {
		opts.MemorySize = 4096
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Millisecond
	}

	d := &Device{
		memory:  make([]byte, opts.MemorySize),
		writeCh: make(chan writeRequest),
		readCh:  make(chan readRequest),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	cfg := corewire.Config{
		SoftwareID:      opts.SoftwareID,
		FeaturesEnabled: opts.FeaturesEnabled,
		ForbiddenRanges: opts.ForbiddenRanges,
		ReadonlyRanges:  opts.ReadonlyRanges,
	}
	h, err := corewire.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("emudevice: %w", err)
	}
	d.handler = h

	go d.run(opts.Tick)

	return d, nil
}

// BaseAddress returns the host address of byte 0 of the device's
// backing memory region, for constructing MemoryControl requests
// against it. The Device holds a reference to the region for its
// entire lifetime, so the address stays valid until Close.
func (d *Device) BaseAddress() uint64 {
	return uint64(uintptr(unsafe.Pointer(&d.memory[0])))
}

// Size returns the size of the backing memory region.
func (d *Device) Size() int { return len(d.memory) }

func (d *Device) run(tick time.Duration) {
	defer close(d.done)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	deltaUs := uint32(tick.Microseconds())
	var pending []readRequest

	drainReads := func() {
		remaining := pending[:0]
		for _, req := range pending {
			if d.handler.Comm().DataToSend() > 0 {
				n := d.handler.Comm().PopData(req.buf)
				req.result <- readResult{n: n}
			} else {
				remaining = append(remaining, req)
			}
		}
		pending = remaining
	}

	for {
		select {
		case <-d.stop:
			for _, req := range pending {
				req.result <- readResult{err: fmt.Errorf("emudevice: closed")}
			}
			return
		case <-ticker.C:
			d.handler.Process(deltaUs)
			drainReads()
		case req := <-d.writeCh:
			// Release the single-in-flight stall first if the previous
			// response has already drained, so these bytes reach the
			// framer instead of being dropped as slack.
			d.handler.Process(0)
			n := d.handler.Comm().ReceiveData(req.data)
			req.result <- n
			drainReads()
		case req := <-d.readCh:
			pending = append(pending, req)
			drainReads()
		}
	}
}

// Write feeds host-to-device bytes into the emulated comm handler.
func (d *Device) Write(p []byte) (int, error) {
	req := writeRequest{data: p, result: make(chan int, 1)}
	select {
	case d.writeCh <- req:
		return <-req.result, nil
	case <-d.done:
		return 0, fmt.Errorf("emudevice: closed")
	}
}

// Read drains whatever device-to-host bytes the comm handler currently
// has queued, blocking until at least one byte is available or the
// device is closed.
func (d *Device) Read(p []byte) (int, error) {
	req := readRequest{buf: p, result: make(chan readResult, 1)}
	select {
	case d.readCh <- req:
	case <-d.done:
		return 0, fmt.Errorf("emudevice: closed")
	}
	res := <-req.result
	return res.n, res.err
}

// Close stops the device's internal goroutine, unblocking any pending
// reads with an error.
func (d *Device) Close() error {
	close(d.stop)
	<-d.done
	return nil
}
