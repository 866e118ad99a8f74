// Package main is the single-binary entrypoint for Janus, the
// dual-identity governance engine.
package main

import "github.com/janus-network/janus/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
