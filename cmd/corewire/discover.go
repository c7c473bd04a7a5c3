// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"crypto/rand"
	"fmt"

	"github.com/cinderwire/cinderwire/pkg/corewire"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Send a stateless Discover request and print the device's reply",
	Long: `Discover sends a CommControl/Discover request carrying a random 8-byte
challenge. A device answers it unconditionally, even without a prior
session, and echoes back the bitwise complement of the challenge
prefixed by the fixed magic sequence 7E 18 FC 68 — this is how a host
tool recognizes a corewire device on an otherwise noisy line.`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("connection", connInfo).Msg("connected")

	var challenge [8]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return fmt.Errorf("corewire: generate challenge: %w", err)
	}

	frame := buildRequestFrame(corewire.CmdCommControl, corewire.SubDiscover, challenge[:])
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("corewire: send discover: %w", err)
	}

	resp, err := readResponseFrame(conn)
	if err != nil {
		return err
	}
	if resp.Code != corewire.CodeOK {
		return fmt.Errorf("corewire: discover failed: %s", resp.Code)
	}
	if len(resp.Data) != 12 {
		return fmt.Errorf("corewire: discover response has unexpected length %d", len(resp.Data))
	}

	fmt.Printf("Magic:      % X\n", resp.Data[:4])
	fmt.Printf("Challenge:  % X\n", challenge[:])
	fmt.Printf("Complement: % X\n", resp.Data[4:])
	return nil
}
