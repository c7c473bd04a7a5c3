// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides the byte-level connections a corewire host
// tool speaks over: a local serial link to a real device, or a
// WebSocket tunnel to a bridged one. Both present the same Connection
// interface so the rest of the host tooling never branches on
// transport kind.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the common interface for reading/writing raw frame
// bytes, regardless of whether they travel over serial or WebSocket.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a local serial port.
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialConnection) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialConnection) Close() error                { return s.port.Close() }

// ErrConnectionClosed is returned by WebSocketConnection.Read once the
// underlying socket has failed or been closed.
var ErrConnectionClosed = fmt.Errorf("transport: websocket connection closed")

// WebSocketConnection adapts a gorilla/websocket connection carrying
// binary messages to the byte-stream Connection interface: corewire
// frames don't align with WebSocket message boundaries, so reads are
// served out of an internal buffer one message at a time.
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error { return w.conn.Close() }

// SerialOptions configures OpenSerial.
type SerialOptions struct {
	Port     string
	BaudRate int
}

// OpenSerial opens a serial port at the given baud rate, 8N1, matching
// the wire framing corewire assumes: no parity or flow control, the
// frame's own CRC is the only integrity check.
func OpenSerial(opts SerialOptions) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(opts.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %s: %w", opts.Port, err)
	}
	return &SerialConnection{port: port}, nil
}

// WebSocketOptions configures OpenWebSocket.
type WebSocketOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// OpenWebSocket dials a corewire bridge over ws:// or wss://, optionally
// authenticating with HTTP Basic auth.
func OpenWebSocket(opts WebSocketOptions) (Connection, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("transport: unsupported url scheme %q (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.SkipSSLVerify}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+creds)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: websocket dial failed: %w", err)
	}
	return &WebSocketConnection{conn: conn}, nil
}

// ReadPassword retrieves a WebSocket auth password from the
// CINDERWIRE_PASSWORD environment variable, falling back to an
// interactive, echo-free prompt.
func ReadPassword() (string, error) {
	if pw := os.Getenv("CINDERWIRE_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("transport: read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}
	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
