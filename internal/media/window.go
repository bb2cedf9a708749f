package media

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinSpan is the smallest selectable range, in seconds.
const MinSpan = 0.1

// TrimWindow is a [Start, End] range in seconds.
type TrimWindow struct {
	Start float64
	End   float64
}

// FullWindow covers the whole source.
func FullWindow(duration float64) TrimWindow {
	return TrimWindow{Start: 0, End: duration}
}

// ValidDuration reports whether a reported duration is usable.
func ValidDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}

// Clamp re-fits the window to a known duration. An unset, invalid, or
// out-of-range End snaps to the duration; Start is kept within
// [0, End-MinSpan].
func (w TrimWindow) Clamp(duration float64) TrimWindow {
	if !ValidDuration(duration) {
		return w
	}
	end := w.End
	if math.IsNaN(end) || end <= 0 || end > duration {
		end = duration
	}
	start := w.Start
	if math.IsNaN(start) || start < 0 {
		start = 0
	}
	if limit := end - MinSpan; start > limit {
		start = math.Max(0, limit)
	}
	return TrimWindow{Start: start, End: end}
}

// Span returns End-Start.
func (w TrimWindow) Span() float64 { return w.End - w.Start }

// Covers reports whether the window selects the entire source.
func (w TrimWindow) Covers(duration float64) bool {
	return w.Start <= 0 && w.End >= duration
}

func (w TrimWindow) String() string {
	return FormatPrecise(w.Start) + "–" + FormatPrecise(w.End)
}

// FormatClock renders whole seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatPrecise renders seconds as MM:SS.cc.
func FormatPrecise(seconds float64) string {
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	centis := int(math.Round(seconds * 100))
	mins := centis / 6000
	secs := (centis % 6000) / 100
	return fmt.Sprintf("%02d:%02d.%02d", mins, secs, centis%100)
}

// ParseTimestamp accepts "SS[.f]", "MM:SS[.f]", or "HH:MM:SS[.f]".
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q has too many fields", value)
	}
	total := 0.0
	for i, part := range parts {
		n, err := strconv.ParseFloat(part, 64)
		if err != nil || n < 0 || math.IsInf(n, 0) {
			return 0, fmt.Errorf("timestamp %q: invalid field %q", value, part)
		}
		if i < len(parts)-1 && n != math.Trunc(n) {
			return 0, fmt.Errorf("timestamp %q: only the last field may be fractional", value)
		}
		total = total*60 + n
	}
	return total, nil
}
