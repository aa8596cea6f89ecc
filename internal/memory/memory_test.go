package memory

import "testing"

func TestAllocZeroed(t *testing.T) {
	r, err := Alloc(1<<16, false)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	defer r.Release()

	buf := r.Bytes()
	if len(buf) != 1<<16 {
		t.Fatalf("len = %d, want %d", len(buf), 1<<16)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}
}

func TestWords(t *testing.T) {
	r, err := Alloc(64, false)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()

	w := r.Words()
	if len(w) != 8 {
		t.Fatalf("len(Words) = %d, want 8", len(w))
	}

	// Words and Bytes alias the same memory.
	w[0] = 0x0102030405060708
	if r.Bytes()[0] == 0 {
		t.Error("Words does not alias Bytes")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r, err := Alloc(4096, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := r.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestLargePageFallback(t *testing.T) {
	// Hosts without a configured large page pool must fall back to a
	// normal allocation rather than fail.
	r, err := Alloc(1<<20, true)
	if err != nil {
		t.Fatalf("Alloc with large pages: %v", err)
	}
	defer r.Release()
	if len(r.Bytes()) != 1<<20 {
		t.Errorf("len = %d, want %d", len(r.Bytes()), 1<<20)
	}
}
