// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

import "encoding/binary"

type rxState uint8

const (
	rxIdle rxState = iota
	rxCmd
	rxSubfn
	rxLen0
	rxPayload
	rxCRC
	rxDiscard
)

// CommHandler turns a noisy byte stream into exactly one validated
// request at a time and drains exactly one response at a time. It owns
// the RX/TX buffers for the life of the core and never allocates once
// constructed.
type CommHandler struct {
	timebase *Timebase

	rxBuf         []byte
	rxHdr         [4]byte
	state         rxState
	payIdx        int
	crcIdx        int
	crcVal        uint32
	discardRemain int

	request        Request
	requestPending bool

	slack       []byte
	slackReplay []byte
	slackCap    int

	response Response
	respBuf  []byte

	txBuf    []byte
	txCursor int
	txLen    int

	sessionConnected      bool
	discovered            bool
	lastHeartbeatUs       uint64
	heartbeatChallengePrev uint16
	heartbeatSeen         bool
	heartbeatTimeoutUs    uint64
}

func newCommHandler(cfg Config, tb *Timebase) *CommHandler {
	c := &CommHandler{
		timebase:           tb,
		rxBuf:              make([]byte, cfg.RxBufferSize-frameOverhead),
		respBuf:            make([]byte, cfg.TxBufferSize-responseHeaderSize-frameTrailerSize),
		txBuf:              make([]byte, cfg.TxBufferSize),
		slackCap:           cfg.RxSlack,
		heartbeatTimeoutUs: cfg.HeartbeatTimeoutUs,
	}
	if cfg.RxSlack > 0 {
		c.slack = make([]byte, 0, cfg.RxSlack)
		c.slackReplay = make([]byte, cfg.RxSlack)
	}
	return c
}

// ReceiveData feeds bytes from the transport into the RX framer. It
// always accepts every byte offered: there is no backpressure because
// the framer works one byte at a time and a frame that cannot fit is
// discarded rather than buffered. Returns the number of bytes consumed
// (always len(data)).
func (c *CommHandler) ReceiveData(data []byte) int {
	for _, b := range data {
		c.receiveByte(b)
	}
	return len(data)
}

func (c *CommHandler) receiveByte(b byte) {
	if c.requestPending {
		if len(c.slack) < c.slackCap {
			c.slack = append(c.slack, b)
		}
		return
	}
	c.stepRx(b)
}

func (c *CommHandler) stepRx(b byte) {
	switch c.state {
	case rxIdle:
		c.rxHdr[0] = b & 0x7F
		c.state = rxCmd
	case rxCmd:
		c.rxHdr[1] = b
		c.state = rxSubfn
	case rxSubfn:
		c.rxHdr[2] = b
		c.state = rxLen0
	case rxLen0:
		c.rxHdr[3] = b
		length := c.payloadLen()
		if length > len(c.rxBuf) {
			c.discardRemain = length + frameTrailerSize
			c.state = rxDiscard
			return
		}
		c.payIdx = 0
		if length == 0 {
			c.crcIdx = 0
			c.crcVal = 0
			c.state = rxCRC
		} else {
			c.state = rxPayload
		}
	case rxPayload:
		c.rxBuf[c.payIdx] = b
		c.payIdx++
		if c.payIdx >= c.payloadLen() {
			c.crcIdx = 0
			c.crcVal = 0
			c.state = rxCRC
		}
	case rxCRC:
		c.crcVal = c.crcVal<<8 | uint32(b)
		c.crcIdx++
		if c.crcIdx == 4 {
			c.finishFrame()
		}
	case rxDiscard:
		c.discardRemain--
		if c.discardRemain <= 0 {
			c.resetRx()
		}
	}
}

func (c *CommHandler) payloadLen() int {
	return int(binary.BigEndian.Uint16(c.rxHdr[2:4]))
}

func (c *CommHandler) finishFrame() {
	length := c.payloadLen()
	crc := crc32Init()
	crc = crc32Update(crc, c.rxHdr[:])
	crc = crc32Update(crc, c.rxBuf[:length])
	if crc32Finish(crc) != c.crcVal {
		c.resetRx()
		return
	}

	c.request.Valid = true
	c.request.CommandID = CommandID(c.rxHdr[0])
	c.request.SubfunctionID = c.rxHdr[1]
	c.request.Data = c.rxBuf[:length]
	c.requestPending = true
	c.state = rxIdle
}

func (c *CommHandler) resetRx() {
	c.state = rxIdle
	c.payIdx = 0
	c.crcIdx = 0
	c.crcVal = 0
	c.discardRemain = 0
}

// RequestReceived reports whether a fully validated request is waiting
// to be dispatched.
func (c *CommHandler) RequestReceived() bool { return c.requestPending }

// Request returns the currently pending request. Only meaningful while
// RequestReceived is true.
func (c *CommHandler) Request() *Request { return &c.request }

// RequestProcessed releases the single-in-flight stall, replaying any
// slack bytes buffered while the request was pending.
func (c *CommHandler) RequestProcessed() {
	c.requestPending = false
	c.request.reset()
	c.resetRx()
	if n := len(c.slack); n > 0 {
		copy(c.slackReplay, c.slack)
		c.slack = c.slack[:0]
		for i := 0; i < n; i++ {
			c.receiveByte(c.slackReplay[i])
		}
	}
}

// PrepareResponse resets and returns the handler's persistent response
// view, backed by respBuf, ready for a command processor to fill in.
func (c *CommHandler) PrepareResponse() *Response {
	c.response.reset(c.respBuf)
	return &c.response
}

// SendResponse assembles resp directly into the TX frame buffer and
// marks it as draining. It must not be called while a previous response
// is still draining.
func (c *CommHandler) SendResponse(resp *Response) bool {
	if c.Transmitting() {
		return false
	}
	total := responseHeaderSize + len(resp.Data) + frameTrailerSize
	if total > len(c.txBuf) {
		return false
	}

	c.txBuf[0] = byte(resp.CommandID) | responseFlag
	c.txBuf[1] = resp.SubfunctionID
	c.txBuf[2] = byte(resp.ResponseCode)
	binary.BigEndian.PutUint16(c.txBuf[3:5], uint16(len(resp.Data)))
	copy(c.txBuf[responseHeaderSize:], resp.Data)

	crc := CalculateCRC32(c.txBuf[:responseHeaderSize+len(resp.Data)])
	binary.BigEndian.PutUint32(c.txBuf[responseHeaderSize+len(resp.Data):], crc)

	c.txLen = total
	c.txCursor = 0
	return true
}

// Transmitting reports whether a prior response is still draining.
func (c *CommHandler) Transmitting() bool { return c.txCursor < c.txLen }

// DataToSend returns the number of bytes still queued for egress.
func (c *CommHandler) DataToSend() int { return c.txLen - c.txCursor }

// PopData copies up to len(dst) queued bytes into dst and advances the
// drain cursor, returning the number of bytes copied.
func (c *CommHandler) PopData(dst []byte) int {
	n := copy(dst, c.txBuf[c.txCursor:c.txLen])
	c.txCursor += n
	return n
}

func (c *CommHandler) truncateTx() {
	c.txCursor = 0
	c.txLen = 0
}

// Connect forces the session into the connected state. Intended for
// local tests and host-driven force-connects; production sessions
// connect implicitly (see noteDiscovered/noteRequestDispatched).
func (c *CommHandler) Connect() {
	c.sessionConnected = true
	c.discovered = true
	if c.timebase != nil {
		c.lastHeartbeatUs = c.timebase.NowUs()
	}
}

// Connected reports the current session state.
func (c *CommHandler) Connected() bool { return c.sessionConnected }

func (c *CommHandler) noteDiscovered() { c.discovered = true }

// noteRequestDispatched implicitly connects the session the first time
// any request other than Discover is dispatched after a Discover has
// been observed. Discover itself never changes session state.
func (c *CommHandler) noteRequestDispatched(cmd CommandID, subfn uint8) {
	if cmd == CmdCommControl && subfn == SubDiscover {
		return
	}
	if c.discovered && !c.sessionConnected {
		c.sessionConnected = true
		c.lastHeartbeatUs = c.timebase.NowUs()
	}
}

// heartbeat validates and applies a heartbeat challenge, returning
// false if it must be rejected (not connected, or a replayed
// challenge).
func (c *CommHandler) heartbeat(challenge uint16) bool {
	if !c.sessionConnected {
		return false
	}
	if c.heartbeatSeen && challenge == c.heartbeatChallengePrev {
		return false
	}
	c.heartbeatSeen = true
	c.heartbeatChallengePrev = challenge
	c.lastHeartbeatUs = c.timebase.NowUs()
	return true
}

// process advances liveness bookkeeping; it must be called once per
// Handler.Process tick, after the timebase has stepped.
func (c *CommHandler) process() {
	if !c.sessionConnected {
		return
	}
	if c.timebase.Elapsed(c.lastHeartbeatUs, c.heartbeatTimeoutUs) {
		c.sessionConnected = false
		c.discovered = false
		c.heartbeatChallengePrev = 0
		c.heartbeatSeen = false
		c.truncateTx()
		c.resetRx()
		c.requestPending = false
		c.request.reset()
		c.slack = c.slack[:0]
	}
}
