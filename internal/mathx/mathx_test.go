package mathx

import "testing"

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct {
		a, b, div, mod int
	}{
		{7, 4, 1, 3},
		{-1, 4, -1, 3},
		{-4, 4, -1, 0},
		{-5, 4, -2, 3},
		{0, 16, 0, 0},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.div {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.div)
		}
		if got := Mod(c.a, c.b); got != c.mod {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.mod)
		}
	}
}

func TestHashDeterministicAndSeeded(t *testing.T) {
	if Hash2(1, 3, -4) != Hash2(1, 3, -4) {
		t.Fatalf("Hash2 not deterministic")
	}
	if Hash2(1, 3, -4) == Hash2(2, 3, -4) {
		t.Fatalf("Hash2 ignores seed")
	}
	if Hash3(9, 1, 2, 3) == Hash3(9, 3, 2, 1) {
		t.Fatalf("Hash3 symmetric in x/z")
	}
}

func TestUnitRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		u := Unit(Hash2(int64(i), i, -i))
		if u < 0 || u >= 1 {
			t.Fatalf("Unit out of range: %v", u)
		}
	}
}
