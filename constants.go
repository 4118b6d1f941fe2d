package kcov

import (
	"github.com/kbarlow/kcov/internal/wire"
)

// Re-export the wire layout constants at the package root, mirroring
// the teacher's root constants.go re-exporting internal/constants.
const (
	WordSize     = wire.WordSize
	CmpEntrySize = wire.CmpEntrySize
	CountSize    = wire.CountSize
	MaxHandles   = wire.MaxHandles
	MaxSizeWords = wire.MaxSizeWords
	MinSizeWords = wire.MinSizeWords
	CMPConst     = wire.CMPConst
)

// Mode is the descriptor/task collection mode (spec.md §3).
type Mode = wire.Mode

const (
	ModeDisabled = wire.ModeDisabled
	ModeInit     = wire.ModeInit
	ModeTracePC  = wire.ModeTracePC
	ModeTraceCmp = wire.ModeTraceCmp
)

// CMPSize returns the type-word encoding for an operand width of
// 1<<width bytes (spec.md §6).
func CMPSize(width uint8) uint64 {
	return wire.CMPSize(width)
}
