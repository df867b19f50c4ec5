// Package main is the single-binary entrypoint for TuTu Ledger.
package main

import "github.com/tutu-network/tutuledger/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
