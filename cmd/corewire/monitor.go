// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/cinderwire/cinderwire/pkg/capture"
	"github.com/cinderwire/cinderwire/pkg/corewire"
	"github.com/spf13/cobra"
)

var (
	monitorInterval time.Duration
	monitorCapture  string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll a device with Discover requests and log every frame",
	Long: `monitor continuously talks to the device and prints every
request/response pair as it happens. Because the protocol is strictly
request/response (a corewire device never sends unsolicited frames),
monitor drives traffic itself via periodic Discover pings rather than
passively listening.

With --capture, every request frame and every response payload is also
recorded to a CBOR capture file that "corewire replay" can play back
later.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 500*time.Millisecond, "time between polls")
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "append observed frames to this CBOR capture file")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := openConnection(appCfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info().Str("connection", connInfo).Msg("connected")

	var recorder *capture.Recorder
	if monitorCapture != "" {
		f, err := os.Create(monitorCapture)
		if err != nil {
			return fmt.Errorf("corewire: open capture file: %w", err)
		}
		defer f.Close()
		recorder = capture.NewRecorder(f, time.Now())
	}

	fmt.Println("Press Ctrl+C to stop")
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for range ticker.C {
		var challenge [8]byte
		if _, err := rand.Read(challenge[:]); err != nil {
			return fmt.Errorf("corewire: generate challenge: %w", err)
		}
		frame := buildRequestFrame(corewire.CmdCommControl, corewire.SubDiscover, challenge[:])

		if _, err := conn.Write(frame); err != nil {
			logger.Error().Err(err).Msg("write failed")
			continue
		}
		if recorder != nil {
			if err := recorder.Record(capture.DirectionTX, time.Now(), frame); err != nil {
				logger.Error().Err(err).Msg("capture write failed")
			}
		}

		resp, err := readResponseFrame(conn)
		if err != nil {
			logger.Error().Err(err).Msg("read failed")
			continue
		}
		logger.Info().
			Str("cmd", fmt.Sprintf("%d/%d", resp.CommandID, resp.SubfunctionID)).
			Str("code", resp.Code.String()).
			Int("len", len(resp.Data)).
			Msg("response")
		if recorder != nil {
			if err := recorder.Record(capture.DirectionRX, time.Now(), resp.Data); err != nil {
				logger.Error().Err(err).Msg("capture write failed")
			}
		}
	}
	return nil
}
