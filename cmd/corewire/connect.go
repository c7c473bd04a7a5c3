// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"fmt"

	"github.com/cinderwire/cinderwire/pkg/emudevice"
	"github.com/cinderwire/cinderwire/pkg/transport"
)

// openConnection picks a transport based on cfg: emulation first (it is
// purely local and never needs credentials), then WebSocket, then
// serial.
func openConnection(cfg AppConfig) (transport.Connection, string, error) {
	if cfg.Emulate {
		dev, err := emudevice.New(emudevice.Options{
			MemorySize:      cfg.EmulateMemory,
			SoftwareID:      cfg.Corewire.SoftwareID,
			FeaturesEnabled: cfg.Corewire.FeaturesEnabled,
			ForbiddenRanges: cfg.Corewire.ForbiddenRanges,
			ReadonlyRanges:  cfg.Corewire.ReadonlyRanges,
		})
		if err != nil {
			return nil, "", fmt.Errorf("corewire: start emulated device: %w", err)
		}
		return dev, fmt.Sprintf("Emulated device (base 0x%X, %d bytes)", dev.BaseAddress(), dev.Size()), nil
	}

	if cfg.URL != "" {
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = transport.ReadPassword()
			if err != nil {
				return nil, "", err
			}
		}
		conn, err := transport.OpenWebSocket(transport.WebSocketOptions{
			URL:           cfg.URL,
			Username:      cfg.Username,
			Password:      password,
			SkipSSLVerify: cfg.NoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.URL), nil
	}

	if cfg.Port != "" {
		conn, err := transport.OpenSerial(transport.SerialOptions{Port: cfg.Port, BaudRate: cfg.Baud})
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud), nil
	}

	return nil, "", fmt.Errorf("corewire: one of --emulate, --url or --port must be specified")
}
