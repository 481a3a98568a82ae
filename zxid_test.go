package zab

import "testing"

func TestZxidOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b Zxid
		less bool
	}{
		{"null precedes real", ZxidNull, Zxid{Epoch: 1, Counter: 1}, true},
		{"same epoch counter order", Zxid{Epoch: 2, Counter: 1}, Zxid{Epoch: 2, Counter: 2}, true},
		{"epoch dominates counter", Zxid{Epoch: 1, Counter: 100}, Zxid{Epoch: 2, Counter: 1}, true},
		{"equal is not less", Zxid{Epoch: 3, Counter: 4}, Zxid{Epoch: 3, Counter: 4}, false},
		{"greater counter same epoch", Zxid{Epoch: 3, Counter: 5}, Zxid{Epoch: 3, Counter: 4}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Less(c.b); got != c.less {
				t.Fatalf("%s.Less(%s) = %v, want %v", c.a, c.b, got, c.less)
			}
		})
	}
}

func TestZxidEquality(t *testing.T) {
	a := Zxid{Epoch: 1, Counter: 2}
	b := Zxid{Epoch: 1, Counter: 2}
	c := Zxid{Epoch: 1, Counter: 3}
	if a != b {
		t.Fatalf("expected %s == %s", a, b)
	}
	if a == c {
		t.Fatalf("expected %s != %s", a, c)
	}
	if !a.LessOrEqual(b) {
		t.Fatalf("expected LessOrEqual to hold for equal zxids")
	}
}

func TestZxidNullIsNull(t *testing.T) {
	if !ZxidNull.IsNull() {
		t.Fatalf("ZxidNull.IsNull() = false")
	}
	if Zxid{Epoch: 0, Counter: 1}.IsNull() {
		t.Fatalf("(0,1) should not be null")
	}
}

func TestZxidNext(t *testing.T) {
	z := Zxid{Epoch: 4, Counter: 9}
	n := z.Next()
	if n.Epoch != 4 || n.Counter != 10 {
		t.Fatalf("Next() = %s, want (4,10)", n)
	}
	if !n.Greater(z) {
		t.Fatalf("Next() must sort after the original")
	}
}
