// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package corewire implements the device-side core of a debugging and
// telemetry wire protocol: a byte-stream framer, a request/response codec,
// and a memory access policy, meant to be embedded into firmware or any
// long-running process that exposes live memory to a host debugging tool.
//
// The core performs no allocation after New, runs single-threaded, and
// is driven entirely by the host calling Process on a timer tick. It owns
// no transport: callers feed it bytes through Comm().ReceiveData and drain
// responses through Comm().PopData.
package corewire
