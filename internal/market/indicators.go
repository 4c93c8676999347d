package market

import "time"

// Bar is one close in a price series with derived trend indicators. An
// indicator is nil until enough history exists to compute it.
type Bar struct {
	Time  time.Time `json:"time" db:"ts"`
	Close float64   `json:"close" db:"close"`
	SMA20 *float64  `json:"sma_20,omitempty" db:"-"`
	SMA50 *float64  `json:"sma_50,omitempty" db:"-"`
	RSI   *float64  `json:"rsi,omitempty" db:"-"`
}

const (
	shortWindow = 20
	longWindow  = 50
	rsiWindow   = 14
)

// WithIndicators returns a copy of bars with SMA20, SMA50 and RSI14 filled in.
// RSI uses simple rolling means of gains and losses.
func WithIndicators(bars []Bar) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)

	for i := range out {
		out[i].SMA20 = sma(out, i, shortWindow)
		out[i].SMA50 = sma(out, i, longWindow)
		out[i].RSI = rsi(out, i, rsiWindow)
	}
	return out
}

func sma(bars []Bar, i, window int) *float64 {
	if i+1 < window {
		return nil
	}
	var sum float64
	for _, b := range bars[i+1-window : i+1] {
		sum += b.Close
	}
	v := sum / float64(window)
	return &v
}

func rsi(bars []Bar, i, window int) *float64 {
	if i < window {
		return nil
	}
	var gain, loss float64
	for k := i + 1 - window; k <= i; k++ {
		d := bars[k].Close - bars[k-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	var v float64
	switch {
	case loss == 0 && gain == 0:
		v = 50
	case loss == 0:
		v = 100
	default:
		rs := gain / loss
		v = 100 - 100/(1+rs)
	}
	return &v
}
