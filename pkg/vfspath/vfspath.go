// Package vfspath implements VfsPath normalization: collapsing "." and
// resolving ".." components, stripping platform prefixes, and recording
// whether the original path was rooted (spec.md §3).
package vfspath

import (
	"strings"

	"github.com/vraftls/vraftls/pkg/vfsid"
)

// Path is a normalized virtual file path. Two paths are equal iff their
// component sequences and client-id annotations are equal (spec.md §3).
type Path struct {
	clientID   vfsid.ClientID
	hasClient  bool
	components []string
	original   string
	rooted     bool
}

// New normalizes raw into a Path with no client-id annotation.
func New(raw string) Path {
	comps, rooted := normalize(raw)
	return Path{components: comps, original: raw, rooted: rooted}
}

// WithClient normalizes raw into a Path scoped to clientID, isolating a
// multi-tenant workspace (spec.md §3).
func WithClient(raw string, clientID vfsid.ClientID) Path {
	p := New(raw)
	p.clientID = clientID
	p.hasClient = true
	return p
}

// normalize splits raw on '/' and '\\', drops any Windows drive prefix
// ("C:"), collapses "." components, and resolves ".." by popping the last
// component (excess ".." at the root are dropped).
func normalize(raw string) ([]string, bool) {
	s := raw
	rooted := strings.HasPrefix(s, "/") || strings.HasPrefix(s, "\\")

	// Strip a Windows-style drive-letter prefix such as "C:" or "C:\"; UNC
	// prefixes are not recognized.
	if len(s) >= 2 && s[1] == ':' && isASCIILetter(s[0]) {
		s = s[2:]
		rooted = true
	}

	raw2 := strings.NewReplacer("\\", "/").Replace(s)
	parts := strings.Split(raw2, "/")

	components := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			// empty parts come from leading/trailing/duplicate slashes
			continue
		case "..":
			if len(components) > 0 {
				components = components[:len(components)-1]
			}
			// excess ".." at the root are silently dropped
		default:
			components = append(components, part)
		}
	}
	return components, rooted
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Components returns the normalized path components.
func (p Path) Components() []string { return p.components }

// Original returns the path's original textual form, used to derive the
// partition key (spec.md §3).
func (p Path) Original() string { return p.original }

// Rooted reports whether the original path was absolute.
func (p Path) Rooted() bool { return p.rooted }

// ClientID returns the path's client-id annotation and whether one is set.
func (p Path) ClientID() (vfsid.ClientID, bool) { return p.clientID, p.hasClient }

// String renders the normalized path, rooted if the original was.
func (p Path) String() string {
	joined := strings.Join(p.components, "/")
	if p.rooted {
		return "/" + joined
	}
	return joined
}

// Equal reports whether p and other have identical components and client-id
// annotation (spec.md §3's equality definition).
func (p Path) Equal(other Path) bool {
	if p.hasClient != other.hasClient || p.clientID != other.clientID {
		return false
	}
	if len(p.components) != len(other.components) {
		return false
	}
	for i := range p.components {
		if p.components[i] != other.components[i] {
			return false
		}
	}
	return true
}

// FileName returns the last component, if any.
func (p Path) FileName() (string, bool) {
	if len(p.components) == 0 {
		return "", false
	}
	return p.components[len(p.components)-1], true
}

// Extension returns the file name's extension (without the dot), if any.
func (p Path) Extension() (string, bool) {
	name, ok := p.FileName()
	if !ok {
		return "", false
	}
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return "", false
	}
	return name[idx+1:], true
}

// Parent returns the path's parent, or false if p has zero or one component.
func (p Path) Parent() (Path, bool) {
	if len(p.components) <= 1 {
		return Path{}, false
	}
	parentComponents := p.components[:len(p.components)-1]
	parent := Path{
		clientID:   p.clientID,
		hasClient:  p.hasClient,
		components: append([]string(nil), parentComponents...),
		rooted:     p.rooted,
	}
	parent.original = parent.String()
	return parent, true
}

// Join appends other's normalized components to p.
func (p Path) Join(other string) Path {
	otherComponents, _ := normalize(other)
	joined := Path{
		clientID:   p.clientID,
		hasClient:  p.hasClient,
		components: append(append([]string(nil), p.components...), otherComponents...),
		rooted:     p.rooted,
	}
	joined.original = joined.String()
	return joined
}

// StartsWith reports whether p's components start with other's component-wise,
// used to implement ListDirectory's prefix matching (spec.md §4.1).
func (p Path) StartsWith(other Path) bool {
	if len(p.components) < len(other.components) {
		return false
	}
	for i, c := range other.components {
		if p.components[i] != c {
			return false
		}
	}
	return true
}

// PartitionKey returns the 64-bit hash of the path's original textual form
// (spec.md §3).
func (p Path) PartitionKey() uint64 {
	return vfsid.PartitionKey(p.original)
}

// extensionToLanguage is the fallback table used when an editor does not
// supply a language id (spec.md §4.6); it matches the spawn table in
// pkg/lspproxy's analyzer table one-for-one.
var extensionToLanguage = map[string]string{
	"rs":  "rust",
	"ts":  "typescript",
	"tsx": "typescript",
	"js":  "javascript",
	"jsx": "javascript",
	"mjs": "javascript",
	"cjs": "javascript",
	"go":  "go",
	"py":  "python",
	"pyi": "python",
}

// LanguageFromExtension maps a file extension to a language id using the
// same table as the editor-language-id fallback (spec.md §4.6). It returns
// ok=false for unknown extensions.
func LanguageFromExtension(ext string) (string, bool) {
	lang, ok := extensionToLanguage[ext]
	return lang, ok
}

// LanguageID infers the language from p's extension via the fallback table.
func (p Path) LanguageID() (string, bool) {
	ext, ok := p.Extension()
	if !ok {
		return "", false
	}
	return LanguageFromExtension(ext)
}
