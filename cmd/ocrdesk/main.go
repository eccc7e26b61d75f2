// ocrdesk - browser and command-line front end for an OCR service
package main

import (
	"os"

	"github.com/ocrdesk/ocrdesk/internal/cli"
	"github.com/ocrdesk/ocrdesk/internal/version"
)

// Set at build time with -ldflags "-X main.Version=... -X main.BuildTime=..."
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	// cobra has already printed the error
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
