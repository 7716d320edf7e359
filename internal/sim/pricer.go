package sim

import (
	"context"
	"errors"
	"sync"

	"marketsim/internal/market"
)

var ErrPricerClosed = errors.New("pricer closed")

type pricerCall struct {
	req  market.TickRequest
	resp chan market.TickResponse
}

// Pricer runs price computation on its own goroutine. Requests and responses
// cross over channels so the goroutine never touches session state.
type Pricer struct {
	calls     chan pricerCall
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPricer starts a pricer that owns rng from here on.
func NewPricer(rng market.Rand) *Pricer {
	p := &Pricer{
		calls: make(chan pricerCall),
		done:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop(rng)
	return p
}

func (p *Pricer) loop(rng market.Rand) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case call := <-p.calls:
			call.resp <- market.ComputeTick(call.req, rng)
		}
	}
}

// Submit prices one tick. A request in flight when the pricer closes is
// dropped and reports ErrPricerClosed.
func (p *Pricer) Submit(ctx context.Context, req market.TickRequest) (market.TickResponse, error) {
	resp := make(chan market.TickResponse, 1)
	select {
	case <-p.done:
		return market.TickResponse{}, ErrPricerClosed
	case <-ctx.Done():
		return market.TickResponse{}, ctx.Err()
	case p.calls <- pricerCall{req: req, resp: resp}:
	}
	select {
	case out := <-resp:
		return out, nil
	case <-p.done:
		return market.TickResponse{}, ErrPricerClosed
	case <-ctx.Done():
		return market.TickResponse{}, ctx.Err()
	}
}

func (p *Pricer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
