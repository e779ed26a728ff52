// Package playlist renders HLS playlists for looping channels.
package playlist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/segment"
)

// ContentType is the MIME type of every playlist served.
const ContentType = "application/vnd.apple.mpegurl"

// DefaultTargetDuration is the EXT-X-TARGETDURATION written when none is configured.
const DefaultTargetDuration = 11

// Type selects how a channel playlist is rendered.
type Type int

const (
	// Static lists the whole catalog once and ends with EXT-X-ENDLIST.
	Static Type = iota
	// Live lists a sliding window of the looping catalog.
	Live
	// VOD currently renders exactly like Live. It does not yet emit
	// EXT-X-PLAYLIST-TYPE:VOD or an end marker at a loop boundary.
	VOD
)

func (t Type) String() string {
	switch t {
	case Static:
		return "static"
	case Live:
		return "live"
	case VOD:
		return "vod"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Renderer formats segment lists as media playlists.
type Renderer struct {
	layout         catalog.Layout
	targetDuration int
	discontinuity  bool
}

// NewRenderer creates a renderer that resolves segment URIs with layout.
// When discontinuity is set, an EXT-X-DISCONTINUITY tag is written at the
// loop point inside a window.
func NewRenderer(layout catalog.Layout, targetDuration int, discontinuity bool) *Renderer {
	if targetDuration <= 0 {
		targetDuration = DefaultTargetDuration
	}
	return &Renderer{
		layout:         layout,
		targetDuration: targetDuration,
		discontinuity:  discontinuity,
	}
}

// TargetDuration returns the EXT-X-TARGETDURATION value written by the renderer.
func (r *Renderer) TargetDuration() int {
	return r.targetDuration
}

// Render writes the playlist for a channel. The output depends only on the
// arguments.
func (r *Renderer) Render(channelID int, mediaSequence uint64, segments segment.List, t Type) string {
	var b strings.Builder

	// HLS playlist header
	b.WriteString("#EXTM3U\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", r.targetDuration))
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence))

	for i, seg := range segments {
		// A lower catalog index than the previous entry means the window
		// wrapped to the start of the catalog.
		if r.discontinuity && i > 0 && seg.Index < segments[i-1].Index {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}

		// Shortest text that parses back to the catalog value, so rendered
		// durations sum to the real loop period.
		b.WriteString("#EXTINF:")
		b.WriteString(strconv.FormatFloat(seg.Duration, 'f', -1, 64))
		b.WriteString(",\n")
		b.WriteString(r.layout.ContentPath(channelID, seg.Filename))
		b.WriteString("\n")
	}

	if t == Static {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}
