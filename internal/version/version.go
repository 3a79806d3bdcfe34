// Package version holds build-time version information for the relief
// binary. The variables are set at build time via -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/reliefconnect/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/reliefconnect/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/reliefconnect/internal/version.BuildDate=2026-01-01"
//
// Without ldflags (e.g. `go run`) they keep readable defaults.
package version

import "fmt"

// Version is the semantic version of the binary (e.g. "v1.2.3").
// Defaults to "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// String returns the one-line version banner printed by `relief version`
// and logged by `relief serve` at startup.
func String() string {
	return fmt.Sprintf("relief %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
