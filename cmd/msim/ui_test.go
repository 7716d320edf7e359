package main

import "testing"

func TestFormatWon(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 KRW"},
		{999, "999 KRW"},
		{1000, "1,000 KRW"},
		{50_000_000, "50,000,000 KRW"},
		{-1234.6, "-1,235 KRW"},
	}
	for _, tc := range cases {
		if got := formatWon(tc.in); got != tc.want {
			t.Fatalf("formatWon(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Cobolt Systems Holdings", 10); got != "Cobolt ..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("  short  ", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
