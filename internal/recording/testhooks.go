package recording

import "time"

// SetTickerForTests overrides the elapsed-timer ticker during tests.
func SetTickerForTests(fn func(time.Duration) Ticker) func() {
	previous := newTicker
	newTicker = fn
	return func() {
		newTicker = previous
	}
}
