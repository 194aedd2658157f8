// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Hubctl - LEGO Powered Up Hub Controller
//
// A CLI tool for driving LEGO Powered Up hubs and decoding their LPF2
// messages in human-readable format.

package main

import (
	"os"

	"github.com/Thermoquad/hubctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
