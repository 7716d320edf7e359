package market

// MovingAverage averages the last period points of prices, or all of them when
// fewer are available.
func MovingAverage(prices []float64, period int) float64 {
	if len(prices) == 0 || period <= 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// RSI is Wilder's relative strength index over the last period changes. It
// returns 50 when there are no changes to measure.
func RSI(prices []float64, period int) float64 {
	if len(prices) < 2 || period <= 0 {
		return 50
	}
	if period > len(prices)-1 {
		period = len(prices) - 1
	}
	window := prices[len(prices)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}
	if gains == 0 && losses == 0 {
		return 50
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - 100/(1+rs)
}

// Returns lists simple returns between consecutive prices.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1])
	}
	return out
}
