package vfs

import (
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

// Command is the vocabulary of mutations the state machine accepts from the
// committed log (spec.md §3, §4.1). Only the fields listed for Kind are
// meaningful; the others are ignored.
type Command struct {
	Kind CommandKind

	// CreateFile
	Path    vfspath.Path
	Content []byte

	// UpdateFile / DeleteFile / RenameFile
	FileID           vfsid.FileID
	ExpectedVersion  vfsid.FileVersion
	HasExpectedVersion bool
	NewPath          vfspath.Path

	// BatchWrite
	Ops []BatchOp

	// InvalidateCache
	InvalidateIDs []vfsid.FileID
}

// CommandKind discriminates Command.
type CommandKind int

const (
	CreateFileCmd CommandKind = iota
	UpdateFileCmd
	DeleteFileCmd
	RenameFileCmd
	BatchWriteCmd
	InvalidateCacheCmd
	// BatchWriteAtomicCmd validates every op in Ops before mutating any of
	// them; either all ops apply or none do. This is a distinct command
	// kind, not a mode of BatchWriteCmd, whose non-atomic semantics are
	// unchanged (spec.md §4.1, §9).
	BatchWriteAtomicCmd
)

// BatchOpKind discriminates BatchOp.
type BatchOpKind int

const (
	BatchCreate BatchOpKind = iota
	BatchUpdate
	BatchDelete
)

// BatchOp is one operation within a BatchWrite command (spec.md §4.1).
type BatchOp struct {
	Kind    BatchOpKind
	Path    vfspath.Path    // BatchCreate
	Content []byte          // BatchCreate / BatchUpdate
	FileID  vfsid.FileID    // BatchUpdate / BatchDelete
}

// Response is the result of applying a Command (or a blank/membership
// entry) to the state machine (spec.md §4.1).
type Response struct {
	// Err is non-nil for the Error(...) outcomes in §4.1; it is always one
	// of the wireerr kinds.
	Err error

	// FileID is set for Created and for Ok(Some(id)) outcomes.
	FileID    vfsid.FileID
	HasFileID bool

	// BatchResults is set for BatchWrite responses.
	BatchResults []BatchResult
}

// BatchResult is a single op's outcome within a BatchWrite response.
type BatchResult struct {
	Err       error
	FileID    vfsid.FileID
	HasFileID bool
}

// ChangeType discriminates ChangeEvent.
type ChangeType int

const (
	Created ChangeType = iota
	Modified
	Deleted
	Renamed
)

// ChangeEvent is broadcast after every mutation, in apply order (spec.md §3).
type ChangeEvent struct {
	Type      ChangeType
	FileID    vfsid.FileID
	Path      vfspath.Path
	Version   vfsid.FileVersion
	Timestamp int64
}
