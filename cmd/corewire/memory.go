// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"encoding/binary"
	"fmt"

	"github.com/cinderwire/cinderwire/pkg/corewire"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read <addr-hex> <length>",
	Short: "Issue a MemoryControl Read for one [addr, length] record",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <addr-hex> <bytes-hex>",
	Short: "Issue a MemoryControl Write for one [addr, bytes] record",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryWrite,
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
}

func encodeAddrField(addr uint64, cfg corewire.Config) []byte {
	width := cfg.AddressWidth
	if width == 0 {
		width = corewire.AddressWidth8
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, addr)
	field := buf[8-int(width):]
	if !cfg.BigEndianAddress {
		reversed := make([]byte, len(field))
		for i, b := range field {
			reversed[len(field)-1-i] = b
		}
		return reversed
	}
	return append([]byte(nil), field...)
}

func runMemoryRead(cmd *cobra.Command, args []string) error {
	addr, err := parseHexUint64(args[0])
	if err != nil {
		return fmt.Errorf("corewire: invalid address: %w", err)
	}
	var length uint64
	if _, err := fmt.Sscanf(args[1], "%d", &length); err != nil {
		return fmt.Errorf("corewire: invalid length: %w", err)
	}

	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("connection", connInfo).Msg("connected")

	payload := append(encodeAddrField(addr, appCfg.Corewire), 0, 0)
	binary.BigEndian.PutUint16(payload[len(payload)-2:], uint16(length))

	frame := buildRequestFrame(corewire.CmdMemoryControl, corewire.SubMemoryRead, payload)
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("corewire: send read: %w", err)
	}
	resp, err := readResponseFrame(conn)
	if err != nil {
		return err
	}
	if resp.Code != corewire.CodeOK {
		return fmt.Errorf("corewire: read failed: %s", resp.Code)
	}

	addrSize := len(encodeAddrField(addr, appCfg.Corewire))
	if len(resp.Data) < addrSize+2 {
		return fmt.Errorf("corewire: short read response")
	}
	dataLen := binary.BigEndian.Uint16(resp.Data[addrSize:])
	data := resp.Data[addrSize+2:]
	if int(dataLen) > len(data) {
		return fmt.Errorf("corewire: read response truncated")
	}
	fmt.Printf("% X\n", data[:dataLen])
	return nil
}

func runMemoryWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseHexUint64(args[0])
	if err != nil {
		return fmt.Errorf("corewire: invalid address: %w", err)
	}
	data, err := parseHexBytes(args[1])
	if err != nil {
		return fmt.Errorf("corewire: invalid bytes: %w", err)
	}

	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("connection", connInfo).Msg("connected")

	payload := append(encodeAddrField(addr, appCfg.Corewire), 0, 0)
	binary.BigEndian.PutUint16(payload[len(payload)-2:], uint16(len(data)))
	payload = append(payload, data...)

	frame := buildRequestFrame(corewire.CmdMemoryControl, corewire.SubMemoryWrite, payload)
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("corewire: send write: %w", err)
	}
	resp, err := readResponseFrame(conn)
	if err != nil {
		return err
	}
	if resp.Code != corewire.CodeOK {
		return fmt.Errorf("corewire: write failed: %s", resp.Code)
	}
	fmt.Println("OK")
	return nil
}
