// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records and replays corewire sessions. A capture is a
// sequence of CBOR-encoded frames, each timestamped relative to session
// start, so a session observed against real hardware can be replayed
// later against the same device or against pkg/emudevice without one.
package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction identifies which side of the wire a captured frame crossed.
type Direction uint8

const (
	// DirectionRX is a frame the host received from the device.
	DirectionRX Direction = iota
	// DirectionTX is a frame the host sent to the device.
	DirectionTX
)

func (d Direction) String() string {
	if d == DirectionTX {
		return "TX"
	}
	return "RX"
}

// Frame is one recorded wire-level event: a set of raw bytes, tagged
// with direction and an offset from the start of the capture.
type Frame struct {
	Direction Direction `cbor:"1,keyasint"`
	OffsetUs  uint64    `cbor:"2,keyasint"`
	Bytes     []byte    `cbor:"3,keyasint"`
}

// Recorder appends frames to an underlying writer as a sequence of
// independent CBOR items. CBOR items are self-delimiting, so a Replayer
// can read them back one at a time without a length prefix or an
// enclosing array.
type Recorder struct {
	enc   *cbor.Encoder
	start time.Time
}

// NewRecorder starts a new capture writing to w. now is normally
// time.Now, injected so tests can control timestamps.
func NewRecorder(w io.Writer, now time.Time) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w), start: now}
}

// Record appends one frame, timestamped relative to the recorder's
// start time using now.
func (r *Recorder) Record(dir Direction, now time.Time, data []byte) error {
	frame := Frame{
		Direction: dir,
		OffsetUs:  uint64(now.Sub(r.start).Microseconds()),
		Bytes:     append([]byte(nil), data...),
	}
	if err := r.enc.Encode(&frame); err != nil {
		return fmt.Errorf("capture: encode frame: %w", err)
	}
	return nil
}

// Replayer reads frames back out of a capture in recorded order.
type Replayer struct {
	dec *cbor.Decoder
}

// NewReplayer opens a capture for reading.
func NewReplayer(r io.Reader) *Replayer {
	return &Replayer{dec: cbor.NewDecoder(r)}
}

// Next returns the next recorded frame, or io.EOF once the capture is
// exhausted.
func (p *Replayer) Next() (Frame, error) {
	var frame Frame
	if err := p.dec.Decode(&frame); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("capture: decode frame: %w", err)
	}
	return frame, nil
}

// Sink is the subset of corewire.CommHandler a replay needs: it receives
// the recorded host-to-device (TX) bytes. Decoupled from corewire to keep
// this package free of a direct dependency on the protocol core.
type Sink interface {
	ReceiveData(data []byte) int
}

// ReplayOptions controls timing fidelity during Replay.
type ReplayOptions struct {
	// Speed scales inter-frame delays: 1 replays at the originally
	// recorded pace, 2 at twice that pace, and 0 (or less) plays every
	// frame back to back with no delay.
	Speed float64
	// OnFrame, if set, is called with every frame as it is replayed
	// (TX before it is fed to sink, RX as observed in the capture).
	OnFrame func(Frame)
}

// Replay feeds every TX frame in the capture (bytes the host originally
// sent to the device) into sink, honoring the recorded inter-frame
// timing (scaled by opts.Speed). RX frames in the capture are not fed
// anywhere; they are the historical record of what the original device
// sent back and are surfaced only via OnFrame, for a caller that wants
// to diff them against what sink produces live.
func Replay(r io.Reader, sink Sink, opts ReplayOptions) error {
	replayer := NewReplayer(r)
	var last uint64
	first := true

	for {
		frame, err := replayer.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if opts.Speed > 0 {
			if !first {
				delta := frame.OffsetUs - last
				time.Sleep(time.Duration(float64(delta)/opts.Speed) * time.Microsecond)
			}
			first = false
			last = frame.OffsetUs
		}

		if opts.OnFrame != nil {
			opts.OnFrame(frame)
		}
		if frame.Direction == DirectionTX {
			sink.ReceiveData(frame.Bytes)
		}
	}
}
