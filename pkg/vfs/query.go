package vfs

import (
	"strings"

	"github.com/vraftls/vraftls/pkg/vfsid"
	"github.com/vraftls/vraftls/pkg/vfspath"
	"github.com/vraftls/vraftls/pkg/wireerr"
)

// GetFile reads a file by id from local state. Queries are not replicated
// and may be stale relative to the leader (spec.md §4.1).
func (sm *StateMachine) GetFile(id vfsid.FileID) (File, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	f, ok := sm.files[id]
	return f, ok
}

// GetFileByPath reads a file by its current path.
func (sm *StateMachine) GetFileByPath(path vfspath.Path) (File, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	id, ok := sm.pathIndex[path.String()]
	if !ok {
		return File{}, false
	}
	return sm.files[id], true
}

// GetContent returns a file's content if loaded, or a wireerr.Internal if
// the file exists but its content is not loaded (spec.md §4.1).
func (sm *StateMachine) GetContent(id vfsid.FileID) ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	f, ok := sm.files[id]
	if !ok {
		return nil, wireerr.FileNotFound(id)
	}
	data, ok := f.Content.Bytes()
	if !ok {
		return nil, wireerr.Internal("content not loaded")
	}
	return data, nil
}

// ListDirectory returns every file whose path starts with prefix,
// component-wise. This is a range scan and is snapshot-inconsistent with
// respect to concurrent apply (spec.md §4.1, §5).
func (sm *StateMachine) ListDirectory(prefix vfspath.Path) []File {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []File
	for _, f := range sm.files {
		if f.Path.StartsWith(prefix) {
			out = append(out, f)
		}
	}
	return out
}

// FindFiles does a linear substring scan over path text (spec.md §4.1).
func (sm *StateMachine) FindFiles(substring string) []File {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []File
	for _, f := range sm.files {
		if strings.Contains(f.Path.Original(), substring) {
			out = append(out, f)
		}
	}
	return out
}

// FileCount returns the number of files currently held.
func (sm *StateMachine) FileCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.files)
}

// AllFileIDs returns every file id currently held.
func (sm *StateMachine) AllFileIDs() []vfsid.FileID {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make([]vfsid.FileID, 0, len(sm.files))
	for id := range sm.files {
		ids = append(ids, id)
	}
	return ids
}
