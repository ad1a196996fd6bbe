package market

// TrueRange returns the true range of a bar given the previous close.
// The first bar of a series has no previous close; pass prevClose <= 0 to
// fall back to the plain high-low range.
func TrueRange(c Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if prevClose > 0 {
		if d := abs(c.High - prevClose); d > tr {
			tr = d
		}
		if d := abs(c.Low - prevClose); d > tr {
			tr = d
		}
	}
	return tr
}

// ATR computes a rolling true-range average over the candle series, Wilder
// style: a running sum over the last `period` bars, divided by the smaller of
// period or elapsed bars while the window is still warming up. Returns the
// value at the final bar, or 0 for an empty series or non-positive period.
func ATR(candles []Candle, period int) float64 {
	if len(candles) == 0 || period <= 0 {
		return 0
	}

	window := make([]float64, 0, period)
	sum := 0.0
	prevClose := 0.0
	for _, c := range candles {
		tr := TrueRange(c, prevClose)
		prevClose = c.Close

		window = append(window, tr)
		sum += tr
		if len(window) > period {
			sum -= window[0]
			window = window[1:]
		}
	}
	return sum / float64(len(window))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
