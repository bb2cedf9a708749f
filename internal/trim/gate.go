package trim

// seekGate is a one-shot latch between seek completion and the record-start
// request. It fires exactly once, when both have happened, in either order.
// A seek completion reported before the seek was issued is ignored. The gate
// is not safe for concurrent use; callers guard it with their own mutex.
type seekGate struct {
	issued    bool
	seeked    bool
	requested bool
	fired     bool
}

// issue marks the seek as requested from the player.
func (g *seekGate) issue() { g.issued = true }

// seekCompleted records the player's seek-finished notification and reports
// whether the caller must start recording now.
func (g *seekGate) seekCompleted() bool {
	if !g.issued || g.seeked {
		return false
	}
	g.seeked = true
	return g.tryFire()
}

// requestStart records the wish to start recording and reports whether the
// caller must start recording now.
func (g *seekGate) requestStart() bool {
	if g.requested {
		return false
	}
	g.requested = true
	return g.tryFire()
}

func (g *seekGate) tryFire() bool {
	if g.fired || !g.seeked || !g.requested {
		return false
	}
	g.fired = true
	return true
}
