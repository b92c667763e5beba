package idhash

import (
	"testing"
)

func TestComputeEventID(t *testing.T) {
	tests := []struct {
		name        string
		txSignature string
		eventIndex  int
		wantLen     int // hash length should be 64
	}{
		{
			name:        "first event",
			txSignature: "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
			eventIndex:  0,
			wantLen:     64,
		},
		{
			name:        "second event",
			txSignature: "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
			eventIndex:  1,
			wantLen:     64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEventID(tt.txSignature, tt.eventIndex)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeEventID() length = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestComputeEventID_Deterministic(t *testing.T) {
	first := ComputeEventID("sig", 3)
	for i := 0; i < 10; i++ {
		if got := ComputeEventID("sig", 3); got != first {
			t.Fatalf("iteration %d: got %s, want %s", i, got, first)
		}
	}
}

func TestComputeEventID_Known(t *testing.T) {
	// sha256("sig|0")
	const want = "2e43932da7516f505f517aebf3584484edb5c49315628538757ffe1bad2ab3cf"
	if got := ComputeEventID("sig", 0); got != want {
		t.Errorf("ComputeEventID() = %s, want %s", got, want)
	}
	if ComputeEventID("sig", 0) == ComputeEventID("sig", 1) {
		t.Error("different indices must produce different ids")
	}
	if ComputeEventID("sig-a", 0) == ComputeEventID("sig-b", 0) {
		t.Error("different signatures must produce different ids")
	}
}
