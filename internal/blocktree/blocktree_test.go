package blocktree

import "testing"

func TestTreeInsertAndGet(t *testing.T) {
	tr := New[string](4, 4, 256) // e=4, k=4, total span grows to 256

	if err := tr.Insert(0, 64, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Insert(64, 64, "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, ok := tr.Get(0); !ok || v != "first" {
		t.Fatalf("got (%q, %v), want (\"first\", true)", v, ok)
	}
	if v, ok := tr.Get(63); !ok || v != "first" {
		t.Fatalf("got (%q, %v), want (\"first\", true) at offset 63", v, ok)
	}
	if v, ok := tr.Get(64); !ok || v != "second" {
		t.Fatalf("got (%q, %v), want (\"second\", true) at offset 64", v, ok)
	}
	if v, ok := tr.Get(127); !ok || v != "second" {
		t.Fatalf("got (%q, %v), want (\"second\", true) at offset 127", v, ok)
	}
}

func TestTreeUnassignedRangeIsAHole(t *testing.T) {
	tr := New[string](4, 4, 256)
	if err := tr.Insert(0, 64, "mapped"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tr.Get(200); ok {
		t.Fatal("expected a miss for an untouched range")
	}
}

func TestTreeDuplicateInsertFails(t *testing.T) {
	tr := New[string](4, 4, 256)
	if err := tr.Insert(0, 64, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.Insert(32, 16, "b"); err == nil {
		t.Fatal("expected an error inserting over an already-assigned range")
	}
}

func TestTreeFineGrainedInsertsWithinOneNode(t *testing.T) {
	// Inserts smaller than one node's span force recursion down to
	// base-element-sized leaves within the same branch.
	tr := New[int](4, 4, 64)

	for i := 0; i < 16; i++ {
		offset := int64(i) * 4
		if err := tr.Insert(offset, 4, i); err != nil {
			t.Fatalf("unexpected error inserting at %d: %v", offset, err)
		}
	}

	for i := 0; i < 16; i++ {
		offset := int64(i) * 4
		v, ok := tr.Get(offset)
		if !ok || v != i {
			t.Fatalf("at offset %d: got (%d, %v), want (%d, true)", offset, v, ok, i)
		}
	}
}

func TestTreeInsertOutOfBounds(t *testing.T) {
	tr := New[int](4, 4, 64)
	if err := tr.Insert(60, 8, 1); err == nil {
		t.Fatal("expected an error for a range extending past the tree's span")
	}
}

func TestTreeInsertMisalignedRangeFails(t *testing.T) {
	tr := New[int](4, 4, 64)
	if err := tr.Insert(1, 2, 1); err == nil {
		t.Fatal("expected an error for a range misaligned with the base element size")
	}
}
