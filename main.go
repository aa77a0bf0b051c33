package main

import (
	"os"

	"github.com/tphakala/safewatch/cmd"
	"github.com/tphakala/safewatch/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	root := cmd.RootCommand(buildinfo.NewContext(version, buildDate))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
