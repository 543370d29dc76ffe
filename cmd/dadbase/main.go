// Package main is the single-binary entrypoint for dadbase.
package main

import "github.com/dadbase/dadbase/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
