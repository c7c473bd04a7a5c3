// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cinderwire/cinderwire/pkg/corewire"
)

// AppConfig is the CLI's own configuration, composed from defaults,
// an optional TOML file, and command-line flags (flags win). It
// embeds a corewire.Config built from the resolved values.
type AppConfig struct {
	// Transport
	Port          string
	Baud          int
	URL           string
	Username      string
	NoSSLVerify   bool
	Emulate       bool
	EmulateMemory int

	// Protocol
	Corewire corewire.Config

	Debug bool
}

// fileConfig is a pointer-free TOML-tagged value; toml.Decode's
// metadata tells us which fields were actually present in the file so
// we only override defaults for keys it sets.
type fileConfig struct {
	Port          string   `toml:"port"`
	Baud          int      `toml:"baud"`
	URL           string   `toml:"url"`
	Username      string   `toml:"username"`
	NoSSLVerify   bool     `toml:"no_ssl_verify"`
	Emulate       bool     `toml:"emulate"`
	EmulateMemory int      `toml:"emulate_memory"`

	SoftwareID       string   `toml:"software_id"`
	AddressWidth     int      `toml:"address_width"`
	BigEndianAddress bool     `toml:"big_endian_address"`
	RxBufferSize     int      `toml:"rx_buffer_size"`
	TxBufferSize     int      `toml:"tx_buffer_size"`
	HeartbeatMs      int64    `toml:"heartbeat_timeout_ms"`
	RxSlack          int      `toml:"rx_slack"`
	FeaturesEnabled  []string `toml:"features_enabled"`
	ForbiddenRanges  []string `toml:"forbidden_ranges"`
	ReadonlyRanges   []string `toml:"readonly_ranges"`

	Debug bool `toml:"debug"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Baud:          115200,
		EmulateMemory: 4096,
		Corewire: corewire.Config{
			AddressWidth: corewire.AddressWidth8,
		},
	}
}

// loadConfig builds an AppConfig from defaults and, if path is
// non-empty, a TOML file at path.
func loadConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return AppConfig{}, fmt.Errorf("corewire: load config %s: %w", path, err)
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("url") {
		cfg.URL = raw.URL
	}
	if meta.IsDefined("username") {
		cfg.Username = raw.Username
	}
	if meta.IsDefined("no_ssl_verify") {
		cfg.NoSSLVerify = raw.NoSSLVerify
	}
	if meta.IsDefined("emulate") {
		cfg.Emulate = raw.Emulate
	}
	if meta.IsDefined("emulate_memory") {
		cfg.EmulateMemory = raw.EmulateMemory
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	if meta.IsDefined("software_id") {
		id, err := hex.DecodeString(strings.TrimSpace(raw.SoftwareID))
		if err != nil {
			return AppConfig{}, fmt.Errorf("corewire: parse software_id: %w", err)
		}
		cfg.Corewire.SoftwareID = id
	}
	if meta.IsDefined("address_width") {
		cfg.Corewire.AddressWidth = corewire.AddressWidth(raw.AddressWidth)
	}
	if meta.IsDefined("big_endian_address") {
		cfg.Corewire.BigEndianAddress = raw.BigEndianAddress
	}
	if meta.IsDefined("rx_buffer_size") {
		cfg.Corewire.RxBufferSize = raw.RxBufferSize
	}
	if meta.IsDefined("tx_buffer_size") {
		cfg.Corewire.TxBufferSize = raw.TxBufferSize
	}
	if meta.IsDefined("heartbeat_timeout_ms") {
		cfg.Corewire.HeartbeatTimeoutUs = uint64(raw.HeartbeatMs) * 1000
	}
	if meta.IsDefined("rx_slack") {
		cfg.Corewire.RxSlack = raw.RxSlack
	}
	if meta.IsDefined("features_enabled") {
		bits, err := parseFeatureNames(raw.FeaturesEnabled)
		if err != nil {
			return AppConfig{}, err
		}
		cfg.Corewire.FeaturesEnabled = bits
	}
	if meta.IsDefined("forbidden_ranges") {
		ranges, err := parseAddressRanges(raw.ForbiddenRanges)
		if err != nil {
			return AppConfig{}, fmt.Errorf("corewire: parse forbidden_ranges: %w", err)
		}
		cfg.Corewire.ForbiddenRanges = ranges
	}
	if meta.IsDefined("readonly_ranges") {
		ranges, err := parseAddressRanges(raw.ReadonlyRanges)
		if err != nil {
			return AppConfig{}, fmt.Errorf("corewire: parse readonly_ranges: %w", err)
		}
		cfg.Corewire.ReadonlyRanges = ranges
	}

	return cfg, nil
}

// parseFeatureNames maps "data_log"/"user_command" names to the
// corewire feature bits (MemoryControl is always enabled and is not a
// settable name here).
func parseFeatureNames(names []string) (uint8, error) {
	var bits uint8
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case "data_log":
			bits |= corewire.FeatureDataLog
		case "user_command":
			bits |= corewire.FeatureUserCommand
		default:
			return 0, fmt.Errorf("corewire: unknown feature name %q", name)
		}
	}
	return bits, nil
}

// parseAddressRanges parses a list of "start-end" hex-address strings
// into corewire.AddressRange values.
func parseAddressRanges(specs []string) ([]corewire.AddressRange, error) {
	ranges := make([]corewire.AddressRange, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("range %q must be \"start-end\"", spec)
		}
		start, err := parseHexUint64(parts[0])
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", spec, err)
		}
		end, err := parseHexUint64(parts[1])
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", spec, err)
		}
		ranges = append(ranges, corewire.AddressRange{Start: start, End: end})
	}
	return ranges, nil
}
