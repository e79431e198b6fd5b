// Package vfs implements the VFS data model and the deterministic state
// machine that applies committed log entries to it (spec.md §3, §4.1).
package vfs

import (
	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
)

// ContentKind tags which representation a File's content currently has
// (spec.md §3).
type ContentKind int

const (
	// ContentNotLoaded means no representation is available locally.
	ContentNotLoaded ContentKind = iota
	// ContentLoaded means the full content is held in memory.
	ContentLoaded
	// ContentOnDisk means the content lives at a local on-disk path.
	ContentOnDisk
	// ContentRemote means the content lives on another node.
	ContentRemote
)

// Content is a tagged union over a file's representation (spec.md §3).
type Content struct {
	Kind ContentKind

	// Loaded holds the in-memory bytes when Kind == ContentLoaded.
	Loaded []byte

	// OnDiskPath holds the local path when Kind == ContentOnDisk.
	OnDiskPath string

	// RemoteNode, RemoteOffset and RemoteLength describe a remote reference
	// when Kind == ContentRemote.
	RemoteNode   vfsid.NodeID
	RemoteOffset uint64
	RemoteLength uint64
}

// LoadedContent builds a Content holding data in memory.
func LoadedContent(data []byte) Content {
	return Content{Kind: ContentLoaded, Loaded: append([]byte(nil), data...)}
}

// IsLoaded reports whether the content is available in memory.
func (c Content) IsLoaded() bool { return c.Kind == ContentLoaded }

// Bytes returns the in-memory content and true, or nil and false if not loaded.
func (c Content) Bytes() ([]byte, bool) {
	if c.Kind != ContentLoaded {
		return nil, false
	}
	return c.Loaded, true
}

// LineEnding is the detected or declared line-ending style of a file
// (spec.md §3).
type LineEnding int

const (
	// LineEndingLF is the default style and the first guess when undetected.
	LineEndingLF LineEnding = iota
	LineEndingCRLF
	LineEndingCR
)

// DetectLineEnding inspects content and returns the first observed style,
// reading "\r\n" as CRLF and a lone "\r" as CR, and defaulting to LF when
// content has no line break (spec.md §3).
func DetectLineEnding(content []byte) LineEnding {
	for i, b := range content {
		if b == '\r' {
			if i+1 < len(content) && content[i+1] == '\n' {
				return LineEndingCRLF
			}
			return LineEndingCR
		}
		if b == '\n' {
			return LineEndingLF
		}
	}
	return LineEndingLF
}

// Metadata carries the read-only flag, optional encoding, line-ending style
// and a free-form attribute map (spec.md §3).
type Metadata struct {
	ReadOnly   bool
	Encoding   string
	HasEncoding bool
	LineEnding LineEnding
	Attributes map[string]string
}

// NewMetadata returns the default metadata for freshly created content:
// writable, no declared encoding, line ending detected from content.
func NewMetadata(content []byte) Metadata {
	return Metadata{
		LineEnding: DetectLineEnding(content),
		Attributes: map[string]string{},
	}
}

// File is the tuple of (file id, path, version, content, checksum,
// last-modified timestamp, owning group id, metadata) described in
// spec.md §3.
type File struct {
	ID           vfsid.FileID
	Path         vfspath.Path
	Version      vfsid.FileVersion
	Content      Content
	Checksum     uint64
	LastModified int64 // milliseconds since Unix epoch
	OwningGroup  vfsid.GroupID
	Metadata     Metadata
}

// checksumOf recomputes the checksum invariant: checksum = hash(content)
// whenever content is loaded (spec.md §3, §8).
func checksumOf(c Content) uint64 {
	if data, ok := c.Bytes(); ok {
		return vfsid.Checksum(data)
	}
	return 0
}
