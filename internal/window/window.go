// Package window computes which slice of a looping catalog is live at a
// given instant.
//
// The catalog plays start to end and then repeats forever from an epoch.
// A window is the run of whole segments starting with the one currently
// playing, labelled with the media sequence number of its first segment.
// Every segment played since the epoch accounts for exactly one sequence
// number, so independent clients joining at different times see the same
// continuous broadcast.
package window

import (
	"errors"
	"fmt"
	"math"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/segment"
)

// ErrInvalidWidth is returned when the requested window width is below one.
var ErrInvalidWidth = errors.New("window width must be positive")

// Window is the result of a window computation.
type Window struct {
	// MediaSequence is the sequence number of the first segment in Segments
	MediaSequence uint64

	// Loop is the number of full catalog loops completed before now
	Loop uint64

	// Start is the catalog index of the first segment in Segments
	Start int

	// Segments holds min(width, len(catalog)) whole segments in play order
	Segments segment.List
}

// Compute returns the window of at most width segments that is live
// elapsedSeconds after the epoch.
//
// A segment counts as played only while the time left after subtracting its
// duration is strictly positive; a position that lands exactly on a segment
// boundary selects the segment starting there.
func Compute(segments segment.List, elapsedSeconds float64, width int) (Window, error) {
	n := len(segments)
	if n == 0 {
		return Window{}, catalog.ErrEmptyCatalog
	}

	if width < 1 {
		return Window{}, fmt.Errorf("%w: got %d", ErrInvalidWidth, width)
	}

	total := segments.TotalDuration()
	if !(total > 0) || math.IsInf(total, 0) {
		return Window{}, fmt.Errorf("%w: total duration %v", catalog.ErrInvalidCatalog, total)
	}

	if !(elapsedSeconds > 0) {
		elapsedSeconds = 0
	}

	loops := math.Floor(elapsedSeconds / total)
	remaining := elapsedSeconds - total*loops
	seq := uint64(loops) * uint64(n)

	// remaining is in [0, total) up to rounding. When rounding leaves it at
	// or above total the walk wraps into the next loop, which still yields
	// the right sequence number. Two passes always suffice.
	start := -1
	for k := 0; k < 2*n; k++ {
		idx := k % n
		remaining -= segments[idx].Duration
		if remaining > 0 {
			seq++
			continue
		}
		start = idx
		break
	}
	if start < 0 {
		return Window{}, fmt.Errorf("%w: position beyond loop period", catalog.ErrInvalidCatalog)
	}

	size := min(width, n)
	window := make(segment.List, 0, size)
	for i := 0; i < size; i++ {
		window = append(window, segments[(start+i)%n])
	}

	return Window{
		MediaSequence: seq,
		Loop:          seq / uint64(n),
		Start:         start,
		Segments:      window,
	}, nil
}
