package vfsid

import "testing"

func TestPartitionKeyDeterministic(t *testing.T) {
	a := PartitionKey("/a.rs")
	b := PartitionKey("/a.rs")
	if a != b {
		t.Fatalf("partition key not deterministic: %d != %d", a, b)
	}
	if PartitionKey("/a.rs") == PartitionKey("/b.rs") {
		t.Fatalf("distinct paths hashed to the same key")
	}
}

func TestChecksumChangesWithContent(t *testing.T) {
	c1 := Checksum([]byte("fn main(){}"))
	c2 := Checksum([]byte("fn m(){}"))
	if c1 == c2 {
		t.Fatalf("distinct content hashed to the same checksum")
	}
	if Checksum([]byte("fn main(){}")) != c1 {
		t.Fatalf("checksum not deterministic")
	}
}

func TestFileVersionMonotonic(t *testing.T) {
	var v FileVersion
	if v != 0 {
		t.Fatalf("zero value should be version 0")
	}
	v = v.Next()
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
}

func TestGroupZeroReserved(t *testing.T) {
	if !GroupZero.IsReserved() {
		t.Fatal("group 0 must be reserved")
	}
	if GroupID(1).IsReserved() {
		t.Fatal("group 1 must not be reserved")
	}
}

func TestLogIDLess(t *testing.T) {
	a := LogID{Term: 1, Index: 5}
	b := LogID{Term: 1, Index: 6}
	c := LogID{Term: 2, Index: 0}
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if !b.Less(c) {
		t.Fatal("expected b < c (term takes priority)")
	}
	if c.Less(a) {
		t.Fatal("expected c not < a")
	}
}
