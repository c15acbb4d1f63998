//go:build linux && cgo

package journald

import (
	"github.com/yairfalse/logship/pkg/collectors/journald/core"
	"github.com/yairfalse/logship/pkg/collectors/journald/linux"
)

func openReader(path core.JournalPath) (core.JournalReader, error) {
	return linux.Open(path)
}
