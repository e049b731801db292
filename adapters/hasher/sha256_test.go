package hasher

import "testing"

func TestHashKnownVector(t *testing.T) {
	h := New()
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := h.Hash([]byte("hello")); got != want {
		t.Errorf("Hash(hello) = %q, want %q", got, want)
	}
}

func TestHashDistinctInputs(t *testing.T) {
	h := New()
	if h.Hash([]byte("a")) == h.Hash([]byte("b")) {
		t.Error("distinct inputs hash to the same digest")
	}
	if len(h.Hash(nil)) != 64 {
		t.Error("digest is not 64 hex characters")
	}
}
