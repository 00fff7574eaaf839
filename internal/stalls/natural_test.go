package stalls

import (
	"sort"
	"testing"
)

func TestNaturalLess(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"A2", "A10", true},
		{"A10", "B1", true},
		{"A10", "A2", false},
		{"B1", "A10", false},
		{"7", "12", true},
		{"A7", "A07", true},
		{"A", "A1", true},
		{"A1", "A1", false},
	}
	for _, tc := range cases {
		if got := NaturalLess(tc.a, tc.b); got != tc.want {
			t.Errorf("NaturalLess(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNaturalSortStalls(t *testing.T) {
	numbers := []string{"B1", "A10", "A2", "A1", "C"}
	sort.Slice(numbers, func(i, j int) bool { return NaturalLess(numbers[i], numbers[j]) })
	want := []string{"A1", "A2", "A10", "B1", "C"}
	for i := range want {
		if numbers[i] != want[i] {
			t.Fatalf("unexpected order %v", numbers)
		}
	}
}
