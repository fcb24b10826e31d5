package bloom

import (
	"testing"

	"github.com/google/uuid"
)

func TestFilter_AddAndMightContain(t *testing.T) {
	f := New(100, 0.01)
	ids := make([]uuid.UUID, 50)
	for i := range ids {
		ids[i] = uuid.New()
		f.Add(ids[i])
	}
	for _, id := range ids {
		if !f.MightContain(id) {
			t.Fatalf("added id %s reported absent", id)
		}
	}
}

func TestFilter_EmptyContainsNothing(t *testing.T) {
	f := New(0, 0)
	for i := 0; i < 100; i++ {
		if f.MightContain(uuid.New()) {
			t.Fatalf("empty filter reported membership")
		}
	}
}

func TestSize(t *testing.T) {
	tests := []struct {
		n     uint64
		p     float64
		wantM uint64
		wantK uint8
	}{
		{1000, 0.01, 9586, 7},
		{0, 0.01, 10, 7},
		{1000, 0, 9586, 7},
		{1000, 1.5, 9586, 7},
	}
	for _, tt := range tests {
		m, k := size(tt.n, tt.p)
		if m != tt.wantM || k != tt.wantK {
			t.Errorf("size(%d, %v) = (%d, %d); want (%d, %d)", tt.n, tt.p, m, k, tt.wantM, tt.wantK)
		}
	}
}
