// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package corewire

// Handler is the main handler: it ticks the comm handler, dispatches
// validated requests to command processors, enforces the memory policy,
// and owns the immutable configuration. It is the root object a host
// application constructs and drives via Process.
type Handler struct {
	cfg    Config
	tb     Timebase
	comm   *CommHandler
	policy memoryPolicy

	processingRequest bool

	// readRecords and writeRecords are scratch decode buffers sized once
	// from cfg.RxBufferSize, reused for every MemoryControl request so
	// Process never allocates past New.
	readRecords  []memReadRecord
	writeRecords []memWriteRecord
}

// New constructs a Handler, copying cfg so later mutation of the
// caller's value has no effect. The session starts disconnected.
func New(cfg Config) (*Handler, error) {
	normalized, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	h := &Handler{cfg: normalized}
	h.comm = newCommHandler(normalized, &h.tb)
	h.policy = newMemoryPolicy(normalized)

	maxRecords := normalized.RxBufferSize / (addrWidthInt(normalized.AddressWidth) + 2)
	if maxRecords < 1 {
		maxRecords = 1
	}
	h.readRecords = make([]memReadRecord, maxRecords)
	h.writeRecords = make([]memWriteRecord, maxRecords)

	return h, nil
}

// Comm returns the handler's comm handler, for host-side ingress/egress.
func (h *Handler) Comm() *CommHandler { return h.comm }

// Process performs one cooperative tick: advance the timebase, advance
// the comm handler's liveness/TX bookkeeping, dispatch at most one
// newly received request, and release the single-in-flight stall once
// its response has finished draining.
func (h *Handler) Process(deltaUs uint32) {
	h.tb.Step(deltaUs)
	h.comm.process()

	if h.comm.RequestReceived() && !h.processingRequest {
		req := h.comm.Request()

		if !h.comm.discovered && !isDiscover(req.CommandID, req.SubfunctionID) {
			// Never discovered: silently drop non-Discover traffic while
			// disconnected.
			h.comm.RequestProcessed()
		} else {
			h.comm.noteRequestDispatched(req.CommandID, req.SubfunctionID)
			h.processingRequest = true
			resp := h.comm.PrepareResponse()
			h.processRequest(req, resp)
			if resp.Valid {
				h.comm.SendResponse(resp)
			}
		}
	}

	if h.processingRequest && !h.comm.Transmitting() {
		h.comm.RequestProcessed()
		h.processingRequest = false
	}
}

func isDiscover(cmd CommandID, subfn uint8) bool {
	return cmd == CmdCommControl && subfn == SubDiscover
}

// processRequest sets response defaults then dispatches on command_id
// via a static match, never a registry of function pointers.
func (h *Handler) processRequest(req *Request, resp *Response) {
	resp.CommandID = req.CommandID
	resp.SubfunctionID = req.SubfunctionID
	resp.ResponseCode = CodeOK
	resp.Valid = true

	switch req.CommandID {
	case CmdGetInfo:
		h.dispatchGetInfo(req, resp)
	case CmdCommControl:
		h.dispatchCommControl(req, resp)
	case CmdMemoryControl:
		h.dispatchMemoryControl(req, resp)
	case CmdDataLogControl, CmdUserCommand:
		resp.Fail(CodeUnsupportedFeature)
	default:
		resp.Fail(CodeUnsupportedFeature)
	}
}

func (h *Handler) dispatchGetInfo(req *Request, resp *Response) {
	switch req.SubfunctionID {
	case SubGetProtocolVersion:
		if len(req.Data) != 0 {
			resp.Fail(CodeInvalidRequest)
			return
		}
		if code := encodeProtocolVersion(resp); code != CodeOK {
			resp.Fail(code)
		}
	case SubGetSoftwareID:
		if len(req.Data) != 0 {
			resp.Fail(CodeInvalidRequest)
			return
		}
		if code := encodeSoftwareID(resp, h.cfg.SoftwareID); code != CodeOK {
			resp.Fail(code)
		}
	case SubGetSupportedFeatures:
		if len(req.Data) != 0 {
			resp.Fail(CodeInvalidRequest)
			return
		}
		features := FeatureMemoryRead | FeatureMemoryWrite
		features |= h.cfg.FeaturesEnabled & (FeatureDataLog | FeatureUserCommand)
		if code := encodeSupportedFeatures(resp, features); code != CodeOK {
			resp.Fail(code)
		}
	default:
		resp.Fail(CodeUnsupportedFeature)
	}
}

func (h *Handler) dispatchCommControl(req *Request, resp *Response) {
	switch req.SubfunctionID {
	case SubDiscover:
		challenge, code := decodeDiscoverChallenge(req.Data)
		if code != CodeOK {
			resp.Fail(code)
			return
		}
		h.comm.noteDiscovered()
		if code := encodeDiscoverResponse(resp, challenge); code != CodeOK {
			resp.Fail(code)
		}
	case SubHeartbeat:
		challenge, code := decodeHeartbeatChallenge(req.Data)
		if code != CodeOK {
			resp.Fail(code)
			return
		}
		if !h.comm.heartbeat(challenge) {
			resp.Fail(CodeInvalidRequest)
			return
		}
		if code := encodeHeartbeatResponse(resp, challenge); code != CodeOK {
			resp.Fail(code)
		}
	default:
		resp.Fail(CodeUnsupportedFeature)
	}
}

func (h *Handler) dispatchMemoryControl(req *Request, resp *Response) {
	switch req.SubfunctionID {
	case SubMemoryRead:
		h.dispatchMemoryRead(req, resp)
	case SubMemoryWrite:
		h.dispatchMemoryWrite(req, resp)
	default:
		resp.Fail(CodeUnsupportedFeature)
	}
}

func (h *Handler) dispatchMemoryRead(req *Request, resp *Response) {
	records, code := decodeMemoryReadRequest(req.Data, h.cfg.AddressWidth, h.cfg.BigEndianAddress, h.readRecords)
	if code != CodeOK {
		resp.Fail(code)
		return
	}
	for _, rec := range records {
		if policyCode := h.policy.checkRead(rec.Addr, uint64(rec.Len)); policyCode != CodeOK {
			resp.Fail(policyCode)
			return
		}
		dst, reserveCode := reserveReadRecord(resp, rec.Addr, rec.Len, h.cfg.AddressWidth, h.cfg.BigEndianAddress)
		if reserveCode != CodeOK {
			resp.Fail(reserveCode)
			return
		}
		uncheckedRead(rec.Addr, dst)
	}
}

func (h *Handler) dispatchMemoryWrite(req *Request, resp *Response) {
	records, code := decodeMemoryWriteRequest(req.Data, h.cfg.AddressWidth, h.cfg.BigEndianAddress, h.writeRecords)
	if code != CodeOK {
		resp.Fail(code)
		return
	}

	for _, rec := range records {
		if policyCode := h.policy.checkWrite(rec.Addr, uint64(len(rec.Bytes))); policyCode != CodeOK {
			resp.Fail(policyCode)
			return
		}
	}

	for _, rec := range records {
		uncheckedWrite(rec.Addr, rec.Bytes)
	}

	for _, rec := range records {
		if appendCode := appendWriteAck(resp, rec.Addr, uint16(len(rec.Bytes)), h.cfg.AddressWidth, h.cfg.BigEndianAddress); appendCode != CodeOK {
			resp.Fail(appendCode)
			return
		}
	}
}
