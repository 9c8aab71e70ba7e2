package random

import "testing"

func TestNewWithSeedIsDeterministic(t *testing.T) {
	a, err := New(42)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(42)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 8; i++ {
		if x, y := a.Int63(), b.Int63(); x != y {
			t.Fatalf("draw %d: %d != %d", i, x, y)
		}
	}
}

func TestNewWithoutSeed(t *testing.T) {
	r, err := New(0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r == nil {
		t.Fatal("expected generator")
	}
}
