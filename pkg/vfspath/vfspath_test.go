package vfspath

import (
	"testing"

	"github.com/vraftls/vraftls/pkg/vfsid"
)

func TestNormalizeCollapsesDotDot(t *testing.T) {
	p := New("/foo/bar/../baz")
	want := []string{"foo", "baz"}
	got := p.Components()
	if len(got) != len(want) {
		t.Fatalf("components = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("components = %v, want %v", got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	p1 := New("/a/./b/../c")
	p2 := New(p1.String())
	if !p1.Equal(p2) {
		t.Fatalf("normalize not idempotent: %v != %v", p1, p2)
	}
}

func TestExcessDotDotAtRootDropped(t *testing.T) {
	p := New("/../../a")
	want := []string{"a"}
	got := p.Components()
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("components = %v, want %v", got, want)
	}
}

func TestFileNameAndExtension(t *testing.T) {
	p := New("/project/src/main.rs")
	name, ok := p.FileName()
	if !ok || name != "main.rs" {
		t.Fatalf("file name = %q, %v", name, ok)
	}
	ext, ok := p.Extension()
	if !ok || ext != "rs" {
		t.Fatalf("extension = %q, %v", ext, ok)
	}
}

func TestLanguageIDFallbackTable(t *testing.T) {
	cases := map[string]string{
		"/a/main.rs":  "rust",
		"/a/index.ts": "typescript",
		"/a/app.js":   "javascript",
		"/a/main.go":  "go",
		"/a/run.py":   "python",
	}
	for path, want := range cases {
		lang, ok := New(path).LanguageID()
		if !ok || lang != want {
			t.Fatalf("LanguageID(%q) = %q, %v; want %q", path, lang, ok, want)
		}
	}
	if _, ok := New("/a/file.unknownext").LanguageID(); ok {
		t.Fatal("expected unknown extension to yield no language")
	}
}

func TestJoin(t *testing.T) {
	base := New("/project")
	joined := base.Join("src/main.rs")
	want := []string{"project", "src", "main.rs"}
	got := joined.Components()
	if len(got) != len(want) {
		t.Fatalf("components = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("components = %v, want %v", got, want)
		}
	}
}

func TestStartsWith(t *testing.T) {
	dir := New("/project/src")
	file := New("/project/src/main.rs")
	other := New("/project/docs")
	if !file.StartsWith(dir) {
		t.Fatal("expected file to start with its containing directory")
	}
	if file.StartsWith(other) {
		t.Fatal("file should not start with an unrelated directory")
	}
}

func TestEqualityRequiresSameClient(t *testing.T) {
	a := New("/x")
	b := WithClient("/x", "tenant-a")
	if a.Equal(b) {
		t.Fatal("paths with different client annotations must not be equal")
	}
}

func TestPartitionKeyMatchesOriginalText(t *testing.T) {
	p := New("/a/b")
	if p.PartitionKey() == 0 {
		t.Fatal("expected a non-zero partition key")
	}
	if p.PartitionKey() != vfsid.PartitionKey("/a/b") {
		t.Fatal("expected the partition key to hash the original text")
	}
	if New("/a/./b").PartitionKey() == p.PartitionKey() {
		t.Fatal("expected a different original text to give a different partition key")
	}
}
