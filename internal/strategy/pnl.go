package strategy

import "math"

// CalculatePnL returns the per-share profit or loss of q if the underlying
// settles at price on expiration. The result is NetCredit between the short
// strikes and exactly -MaxLoss beyond the widest wing.
func CalculatePnL(q *Quote, price float64) float64 {
	return q.Metrics.NetCredit - Intrinsic(q.Strikes, price)
}

// Intrinsic is the per-share value of the short spread at expiration
func Intrinsic(s Strikes, price float64) float64 {
	callLoss := math.Min(math.Max(price-s.ShortCall, 0), s.CallWing())
	putLoss := math.Min(math.Max(s.ShortPut-price, 0), s.PutWing())
	return callLoss + putLoss
}

// Breakevens returns the lower and upper expiration breakeven prices
func Breakevens(q *Quote) (lower, upper float64) {
	return q.Strikes.ShortPut - q.Metrics.NetCredit, q.Strikes.ShortCall + q.Metrics.NetCredit
}
