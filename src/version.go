package main

import "github.com/apimgr/memberkit/src/cli"

// Version information, injected at build time via ldflags
// Example: go build -ldflags="-X main.Version=1.2.3 -X main.CommitID=abc123 -X 'main.BuildDate=2026-10-17'"
var (
	// Version is the semantic version of the installer
	Version = "dev"

	// BuildDate is the build timestamp (human-readable format)
	BuildDate = "unknown"

	// CommitID is the short git commit hash
	CommitID = "unknown"
)

func buildInfo() cli.BuildInfo {
	return cli.BuildInfo{Version: Version, CommitID: CommitID, BuildDate: BuildDate}
}
