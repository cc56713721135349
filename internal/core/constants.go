// Package core provides shared constants, configuration and logging for the
// SpaceTraders cache client.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// API configuration
const (
	APIBaseURL      = "https://api.spacetraders.io/v2"
	TokenEnvVar     = "SPACETRADERS_TOKEN"
	CallsignEnvVar  = "SPACETRADERS_CALLSIGN"
	DefaultCallsign = "UNKNOWN"
)

// Timestamp format used by the API for expirations and cooldowns.
const APITimestampFmt = time.RFC3339Nano

// Pagination
const (
	// PageLimit is the largest page the API will serve.
	PageLimit = 20
	// DefaultPageDelay keeps bulk refreshes under the 2 requests/second limit.
	DefaultPageDelay = 500 * time.Millisecond
	// DefaultStartPage is the first page of every listing.
	DefaultStartPage = 1
)

// Cache layout defaults
const (
	// DefaultShardPrefixLen splits sharded collections on the first N characters
	// of the key. For system symbols only the last of the four varies.
	DefaultShardPrefixLen = 4
	// DefaultChartDepth is K, the number of best prices kept per commodity side.
	DefaultChartDepth = 5
	// SystemSymbolLen is the length of the system prefix of a waypoint symbol.
	SystemSymbolLen = 7
	// LoadWorkers bounds concurrent shard reads when loading a whole collection.
	LoadWorkers = 8
)

// DefaultConfigFile is read from the working directory when no --config is given.
const DefaultConfigFile = "stcache.toml"

// CacheRoot returns the default cache directory path.
func CacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".spacetraders", "cache")
}

// Version is the current CLI version.
const Version = "0.3.0"
