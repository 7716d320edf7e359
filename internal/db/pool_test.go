package db

import (
	"testing"
	"time"
)

func TestPick(t *testing.T) {
	if got := pick(int32(0), 20); got != 20 {
		t.Fatalf("pick zero = %d", got)
	}
	if got := pick(int32(-1), 2); got != 2 {
		t.Fatalf("pick negative = %d", got)
	}
	if got := pick(5*time.Minute, 30*time.Minute); got != 5*time.Minute {
		t.Fatalf("pick set = %v", got)
	}
}

func TestDefaultPoolOptions(t *testing.T) {
	opts := DefaultPoolOptions()
	if opts.MaxConns != 20 || opts.MinConns != 2 {
		t.Fatalf("unexpected pool sizes %+v", opts)
	}
	if opts.MaxConnLifetime != 30*time.Minute || opts.MaxConnIdleTime != 10*time.Minute {
		t.Fatalf("unexpected lifetimes %+v", opts)
	}
}
