// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	appCfg  AppConfig
	logger  zerolog.Logger

	flagPort        string
	flagBaud        int
	flagURL         string
	flagUsername    string
	flagNoSSLVerify bool
	flagEmulate     bool
	flagDebug       bool
)

var rootCmd = &cobra.Command{
	Use:   "corewire",
	Short: "Host-side tool for the corewire embedded debug/telemetry protocol",
	Long: `corewire talks to a device running the corewire protocol core over
serial or WebSocket, or against an in-process emulated device.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Emulated:  --emulate

WebSocket passwords are read from CINDERWIRE_PASSWORD, or prompted for
interactively; there is intentionally no --password flag.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(&cfg)
		appCfg = cfg
		logger = initLogger(appCfg.Debug)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVarP(&flagPort, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&flagBaud, "baud", "b", 0, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVarP(&flagURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&flagUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&flagNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	rootCmd.PersistentFlags().BoolVar(&flagEmulate, "emulate", false, "Talk to an in-process emulated device instead of real hardware")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// applyFlagOverrides lets explicitly-set flags win over the loaded
// config file, which in turn already won over defaultAppConfig.
func applyFlagOverrides(cfg *AppConfig) {
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if flagBaud != 0 {
		cfg.Baud = flagBaud
	}
	if flagURL != "" {
		cfg.URL = flagURL
	}
	if flagUsername != "" {
		cfg.Username = flagUsername
	}
	if flagNoSSLVerify {
		cfg.NoSSLVerify = true
	}
	if flagEmulate {
		cfg.Emulate = true
	}
	if flagDebug {
		cfg.Debug = true
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
