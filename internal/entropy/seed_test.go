package entropy

import "testing"

func TestSeed_PositiveAndVaried(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 16; i++ {
		s := Seed()
		if s <= 0 {
			t.Fatalf("seed %d not positive", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Error("seeds never vary")
	}
}
