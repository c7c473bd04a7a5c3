// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/cinderwire/cinderwire/pkg/corewire"
	"github.com/spf13/cobra"
)

var heartbeatInterval time.Duration

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Discover, connect, then send heartbeats at a fixed interval",
	Long: `heartbeat discovers the device, sends one non-Discover request to
implicitly connect the session (a GetProtocolVersion query), and then
sends Heartbeat requests with a strictly increasing challenge every
--interval until interrupted. Letting the interval exceed the device's
configured heartbeat timeout is a convenient way to exercise the
session-reset path.`,
	RunE: runHeartbeat,
}

func init() {
	heartbeatCmd.Flags().DurationVar(&heartbeatInterval, "interval", time.Second, "time between heartbeats")
	rootCmd.AddCommand(heartbeatCmd)
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("connection", connInfo).Msg("connected")

	var challenge [8]byte
	discoverFrame := buildRequestFrame(corewire.CmdCommControl, corewire.SubDiscover, challenge[:])
	if _, err := conn.Write(discoverFrame); err != nil {
		return fmt.Errorf("corewire: send discover: %w", err)
	}
	if _, err := readResponseFrame(conn); err != nil {
		return err
	}

	versionFrame := buildRequestFrame(corewire.CmdGetInfo, corewire.SubGetProtocolVersion, nil)
	if _, err := conn.Write(versionFrame); err != nil {
		return fmt.Errorf("corewire: send connecting request: %w", err)
	}
	if _, err := readResponseFrame(conn); err != nil {
		return err
	}
	logger.Info().Msg("session connected")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	seq := uint16(rand.Uint32())
	for range ticker.C {
		seq++
		var payload [2]byte
		binary.BigEndian.PutUint16(payload[:], seq)

		frame := buildRequestFrame(corewire.CmdCommControl, corewire.SubHeartbeat, payload[:])
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("corewire: send heartbeat: %w", err)
		}
		resp, err := readResponseFrame(conn)
		if err != nil {
			return err
		}
		logger.Info().Uint16("challenge", seq).Str("code", resp.Code.String()).Msg("heartbeat")
	}
	return nil
}
