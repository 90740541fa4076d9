// Package main is the single-binary entrypoint for the Device
// Orchestration Core.
package main

import "github.com/ehmo/sovi/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
