// main.go: aether CLI entry point
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"os"

	"github.com/agilira/aether/cmd/cli"

	// Compiled-in drivers.
	_ "github.com/agilira/aether/drivers/counter"
	_ "github.com/agilira/aether/drivers/file"
)

func main() {
	if err := cli.NewManager().Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
