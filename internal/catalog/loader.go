// Package catalog loads per-channel segment catalogs from HLS index files.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"regexp"

	"github.com/agleyzer/hlsloop/internal/segment"
	"github.com/grafov/m3u8"
)

// Source produces the segment list of a channel.
type Source interface {
	Load(channelID int) (segment.List, error)
}

var filenamePattern = regexp.MustCompile(`^[\w.]+$`)

// Loader reads channel catalogs from disk.
type Loader struct {
	layout Layout
	logger *slog.Logger
}

// NewLoader creates a loader for the given layout.
func NewLoader(layout Layout, logger *slog.Logger) *Loader {
	return &Loader{layout: layout, logger: logger}
}

// Load reads and parses the index file of a channel.
func (l *Loader) Load(channelID int) (segment.List, error) {
	indexPath := l.layout.IndexPath(channelID)

	f, err := os.Open(indexPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("channel %d: %w", channelID, ErrCatalogNotFound)
		}
		return nil, fmt.Errorf("channel %d: failed to open catalog: %w", channelID, err)
	}
	defer f.Close()

	segments, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("channel %d: %w", channelID, err)
	}

	l.logger.Debug("loaded catalog",
		"channel", channelID,
		"path", indexPath,
		"segments", len(segments),
		"duration", segments.TotalDuration(),
	)

	return segments, nil
}

// Decode parses an HLS media playlist into a segment list.
func Decode(r io.Reader) (segment.List, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse index: %v", ErrInvalidCatalog, err)
	}

	if listType != m3u8.MEDIA {
		return nil, fmt.Errorf("%w: expected media playlist, got master playlist", ErrInvalidCatalog)
	}

	mediaPlaylist, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected playlist type", ErrInvalidCatalog)
	}

	var segments segment.List
	for i, seg := range mediaPlaylist.Segments {
		if seg == nil || uint(i) >= mediaPlaylist.Count() {
			break
		}

		if !filenamePattern.MatchString(seg.URI) {
			return nil, fmt.Errorf("%w: segment %d has unsupported filename %q", ErrInvalidCatalog, i, seg.URI)
		}

		if math.IsNaN(seg.Duration) || math.IsInf(seg.Duration, 0) || seg.Duration < 0 {
			return nil, fmt.Errorf("%w: segment %d has invalid duration %v", ErrInvalidCatalog, i, seg.Duration)
		}

		segments = append(segments, segment.Segment{
			Filename: seg.URI,
			Duration: seg.Duration,
			Index:    i,
		})
	}

	if len(segments) == 0 {
		return nil, ErrEmptyCatalog
	}

	// A loop with no length has no position to play from.
	if !(segments.TotalDuration() > 0) {
		return nil, fmt.Errorf("%w: total duration is zero", ErrInvalidCatalog)
	}

	return segments, nil
}
