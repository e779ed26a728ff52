package playlist

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/clock"
	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/segment"
	"github.com/agleyzer/hlsloop/internal/window"
)

// Generator produces channel playlists from the catalog and the loop clock.
// It holds no per-request state and is safe for concurrent use.
type Generator struct {
	catalogs   catalog.Source
	clock      *clock.Clock
	renderer   *Renderer
	windowSize int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewGenerator creates a generator. m may be nil.
func NewGenerator(catalogs catalog.Source, clk *clock.Clock, renderer *Renderer, windowSize int, logger *slog.Logger, m *metrics.Metrics) (*Generator, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	return &Generator{
		catalogs:   catalogs,
		clock:      clk,
		renderer:   renderer,
		windowSize: windowSize,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Generate renders the playlist of the given type for a channel. It either
// returns a complete playlist or an error, never a partial body.
func (g *Generator) Generate(channelID int, t Type) (string, error) {
	segments, err := g.catalogs.Load(channelID)
	if err != nil {
		return "", err
	}

	var mediaSequence uint64
	if t == Live || t == VOD {
		elapsed := g.clock.Elapsed()
		w, err := window.Compute(segments, elapsed.Seconds(), g.windowSize)
		if err != nil {
			return "", fmt.Errorf("channel %d: %w", channelID, err)
		}

		g.logger.Debug("computed window",
			"channel", channelID,
			"type", t,
			"elapsed", elapsed,
			"loop", w.Loop,
			"start", w.Start,
			"sequence", w.MediaSequence,
		)

		mediaSequence = w.MediaSequence
		segments = w.Segments

		if g.metrics != nil {
			g.metrics.SetMediaSequence(channelID, mediaSequence)
		}
	} else if err := checkLoop(segments); err != nil {
		return "", fmt.Errorf("channel %d: %w", channelID, err)
	}

	if g.metrics != nil {
		g.metrics.IncRenders(t.String())
	}

	return g.renderer.Render(channelID, mediaSequence, segments, t), nil
}

// checkLoop rejects lists that window.Compute would reject, so every
// playlist type fails on the same catalogs.
func checkLoop(segments segment.List) error {
	if len(segments) == 0 {
		return catalog.ErrEmptyCatalog
	}
	if total := segments.TotalDuration(); !(total > 0) || math.IsInf(total, 0) {
		return fmt.Errorf("%w: total duration %v", catalog.ErrInvalidCatalog, total)
	}
	return nil
}

// Stats returns current statistics about the generator.
func (g *Generator) Stats() map[string]any {
	stats := map[string]any{
		"window_size":     g.windowSize,
		"target_duration": g.renderer.TargetDuration(),
		"epoch":           g.clock.Epoch().UTC().Format(time.RFC3339Nano),
		"elapsed_seconds": g.clock.Elapsed().Seconds(),
	}

	if c, ok := g.catalogs.(interface{ Len() int }); ok {
		stats["cached_channels"] = c.Len()
	}

	return stats
}
