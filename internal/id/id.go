// Package id generates short prefixed identifiers for dispatch cycles and
// live-reload clients.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used by livewatch.
const (
	PrefixCycle  = "cycle"
	PrefixClient = "lr"
)

// shortLength keeps ids readable in console output.
const shortLength = 10

// Generate creates a prefixed NanoID, e.g. "cycle-V1StGXR8_Z".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New(shortLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if the system has no entropy.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}
