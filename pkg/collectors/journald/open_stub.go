//go:build !linux || !cgo

package journald

import (
	"errors"

	"github.com/yairfalse/logship/pkg/collectors/journald/core"
)

// The systemd journal only exists on Linux. Other platforms get a stub so
// the package still builds for development.
func openReader(path core.JournalPath) (core.JournalReader, error) {
	return nil, errors.New("journald is only supported on linux")
}
