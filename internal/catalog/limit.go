package catalog

import (
	"time"

	"github.com/agleyzer/hlsloop/internal/segment"
)

// LimitDuration returns the leading segments that fit within maxDuration.
// A segment that overshoots is still included if it exceeds maxDuration by
// no more than 50%. At least one segment is always returned for a non-empty
// list. A zero maxDuration returns the list unchanged.
func LimitDuration(segments segment.List, maxDuration time.Duration) segment.List {
	if len(segments) == 0 || maxDuration <= 0 {
		return segments
	}

	maxDurationSeconds := maxDuration.Seconds()
	var totalDuration float64
	var result segment.List

	for i, seg := range segments {
		if i == 0 {
			result = append(result, seg)
			totalDuration += seg.Duration
			continue
		}

		newTotal := totalDuration + seg.Duration
		if newTotal <= maxDurationSeconds {
			result = append(result, seg)
			totalDuration = newTotal
			continue
		}

		if newTotal-maxDurationSeconds <= maxDurationSeconds*0.5 {
			result = append(result, seg)
		}
		break
	}

	return result
}

// Limited applies LimitDuration to every list produced by Source.
type Limited struct {
	Source Source
	Max    time.Duration
}

// Load loads the channel from the wrapped source and trims it.
func (l Limited) Load(channelID int) (segment.List, error) {
	list, err := l.Source.Load(channelID)
	if err != nil {
		return nil, err
	}
	return LimitDuration(list, l.Max), nil
}
