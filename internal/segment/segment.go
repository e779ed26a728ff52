// Package segment defines data structures for HLS media segments.
package segment

// Segment represents a single media segment of a channel catalog.
type Segment struct {
	// Filename is the segment file name as listed in the catalog index
	Filename string

	// Duration is the segment duration in seconds
	Duration float64

	// Index is the position in the catalog, starting at 0
	Index int
}

// List is an ordered catalog of segments. Order defines playback order
// for one loop iteration.
type List []Segment

// TotalDuration returns the loop period of the list in seconds.
func (l List) TotalDuration() float64 {
	var total float64
	for _, seg := range l {
		total += seg.Duration
	}
	return total
}

// Filenames returns the file names in list order.
func (l List) Filenames() []string {
	names := make([]string, len(l))
	for i, seg := range l {
		names[i] = seg.Filename
	}
	return names
}
