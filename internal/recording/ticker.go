package recording

import (
	"sync/atomic"
	"time"
)

// Ticker is the subset of time.Ticker the elapsed timer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

var newTicker = func(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

// elapsedTimer adds one second per tick to a shared counter. stop cancels the
// ticker and joins the goroutine, so a stopped timer can never tick again.
type elapsedTimer struct {
	quit chan struct{}
	done chan struct{}
}

func startElapsedTimer(counter *atomic.Int64) *elapsedTimer {
	ticker := newTicker(time.Second)
	t := &elapsedTimer{quit: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-ticker.C():
				select {
				case <-t.quit:
					return
				default:
				}
				counter.Add(1)
			}
		}
	}()
	return t
}

func (t *elapsedTimer) stop() {
	if t == nil {
		return
	}
	close(t.quit)
	<-t.done
}
