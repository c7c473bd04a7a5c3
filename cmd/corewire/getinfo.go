// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"fmt"

	"github.com/cinderwire/cinderwire/pkg/corewire"
	"github.com/spf13/cobra"
)

var getinfoCmd = &cobra.Command{
	Use:       "getinfo [version|software-id|features]",
	Short:     "Query a GetInfo subfunction",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"version", "software-id", "features"},
	RunE:      runGetInfo,
}

func init() {
	rootCmd.AddCommand(getinfoCmd)
}

func runGetInfo(cmd *cobra.Command, args []string) error {
	var subfn uint8
	switch args[0] {
	case "version":
		subfn = corewire.SubGetProtocolVersion
	case "software-id":
		subfn = corewire.SubGetSoftwareID
	case "features":
		subfn = corewire.SubGetSupportedFeatures
	}

	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("connection", connInfo).Msg("connected")

	frame := buildRequestFrame(corewire.CmdGetInfo, subfn, nil)
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("corewire: send getinfo: %w", err)
	}

	resp, err := readResponseFrame(conn)
	if err != nil {
		return err
	}
	if resp.Code != corewire.CodeOK {
		return fmt.Errorf("corewire: getinfo failed: %s", resp.Code)
	}

	switch args[0] {
	case "version":
		if len(resp.Data) != 2 {
			return fmt.Errorf("corewire: unexpected version payload length %d", len(resp.Data))
		}
		fmt.Printf("Protocol version: %d.%d\n", resp.Data[0], resp.Data[1])
	case "software-id":
		fmt.Printf("Software ID: % X\n", resp.Data)
	case "features":
		if len(resp.Data) != 1 {
			return fmt.Errorf("corewire: unexpected features payload length %d", len(resp.Data))
		}
		printFeatures(resp.Data[0])
	}
	return nil
}

func printFeatures(bits uint8) {
	named := []struct {
		bit  uint8
		name string
	}{
		{corewire.FeatureMemoryRead, "memory-read"},
		{corewire.FeatureMemoryWrite, "memory-write"},
		{corewire.FeatureDataLog, "data-log"},
		{corewire.FeatureUserCommand, "user-command"},
	}
	fmt.Printf("Supported features (0x%02X):\n", bits)
	for _, f := range named {
		mark := " "
		if bits&f.bit != 0 {
			mark = "x"
		}
		fmt.Printf("  [%s] %s\n", mark, f.name)
	}
}
