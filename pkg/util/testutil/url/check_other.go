//go:build !linux

package url

import (
	"testing"
)

// netstat only reads /proc, so other platforms rely on the listen-and-close probe alone.
func environmentCheck(_ string, _ testing.TB) bool {
	return true
}
