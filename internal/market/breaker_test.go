package market

import (
	"math"
	"testing"
)

func TestMarketIndex(t *testing.T) {
	companies := []Company{
		{Price: 110, BasePrice: 100, MarketCap: 3},
		{Price: 90, BasePrice: 100, MarketCap: 1},
	}
	if got := MarketIndex(companies); math.Abs(got-105) > 1e-9 {
		t.Fatalf("index=%v", got)
	}
	if got := MarketIndex(nil); got != 100 {
		t.Fatalf("empty index=%v", got)
	}
}

func TestCheckBreakerLevelsTripOncePerDay(t *testing.T) {
	b := NewBreaker(100)
	b, tripped := CheckBreaker(b, 95)
	if tripped || b.Halted() {
		t.Fatalf("tripped at -5%%")
	}
	b, tripped = CheckBreaker(b, 91)
	if !tripped || b.Level != 1 || b.Remaining != 60 {
		t.Fatalf("level 1 expected: %+v", b)
	}
	for i := 0; i < 60; i++ {
		b, _ = CheckBreaker(b, 91)
	}
	if b.Halted() {
		t.Fatalf("still halted after 60 ticks: %+v", b)
	}
	if b, tripped = CheckBreaker(b, 91); tripped {
		t.Fatalf("level 1 tripped twice")
	}
	b, tripped = CheckBreaker(b, 79)
	if !tripped || b.Level != 3 || !b.UntilClose {
		t.Fatalf("level 3 expected: %+v", b)
	}
	for i := 0; i < 500; i++ {
		b, _ = CheckBreaker(b, 79)
	}
	if !b.Halted() {
		t.Fatalf("level 3 should halt until close")
	}
	if NewBreaker(79).Halted() {
		t.Fatalf("new day should clear the halt")
	}
}
