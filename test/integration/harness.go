// Package integration drives the full HTTP surface over real catalogs on disk
// with a controllable clock.
package integration

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/clock"
	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/playlist"
	"github.com/agleyzer/hlsloop/internal/server"
	"github.com/agleyzer/hlsloop/internal/variant"
)

// Epoch is the loop epoch every harness starts from.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// FakeClock is a settable wall clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to elapsed after Epoch.
func (c *FakeClock) Set(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch.Add(elapsed)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestHarness manages the test environment for integration tests.
type TestHarness struct {
	t      *testing.T
	layout catalog.Layout
	clock  *FakeClock
	server *httptest.Server
}

// NewTestHarness creates a harness over an empty content root with the clock
// at Epoch.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	layout := catalog.DefaultLayout()
	layout.Root = t.TempDir()

	return &TestHarness{
		t:      t,
		layout: layout,
		clock:  &FakeClock{now: Epoch},
	}
}

// Clock returns the harness clock.
func (h *TestHarness) Clock() *FakeClock {
	return h.clock
}

// AddChannel writes a catalog for channelID with numSegments segments of
// the given duration, named segment000.ts, segment001.ts and so on.
func (h *TestHarness) AddChannel(channelID, numSegments int, duration float64) {
	h.t.Helper()

	indexPath := h.layout.IndexPath(channelID)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		h.t.Fatalf("failed to create channel directory: %v", err)
	}

	if err := os.WriteFile(indexPath, []byte(createTestPlaylist(numSegments, duration)), 0o644); err != nil {
		h.t.Fatalf("failed to write channel %d catalog: %v", channelID, err)
	}

	h.t.Logf("Added channel %d: %d segments of %.1fs", channelID, numSegments, duration)
}

// Start builds the full server stack and serves it over a loopback listener.
func (h *TestHarness) Start(windowSize int, discontinuity bool) {
	h.t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New()

	cache := catalog.NewCache(catalog.NewLoader(h.layout, logger), m)
	renderer := playlist.NewRenderer(h.layout, playlist.DefaultTargetDuration, discontinuity)
	clk := clock.New(clock.Fixed(Epoch), h.clock.Now)

	generator, err := playlist.NewGenerator(cache, clk, renderer, windowSize, logger, m)
	if err != nil {
		h.t.Fatalf("failed to create generator: %v", err)
	}

	master, err := playlist.RenderMaster(variant.Default())
	if err != nil {
		h.t.Fatalf("failed to render master playlist: %v", err)
	}

	srv := server.New(generator, server.Config{
		ContentRoot: h.layout.Root,
		Master:      master,
	}, logger, m)

	h.server = httptest.NewServer(srv.Handler())
	h.t.Cleanup(h.server.Close)
}

// Fetch performs a GET on path and returns the status code and body.
func (h *TestHarness) Fetch(path string) (int, string) {
	h.t.Helper()

	resp, err := http.Get(h.server.URL + path)
	if err != nil {
		h.t.Fatalf("failed to fetch %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("failed to read %s body: %v", path, err)
	}

	return resp.StatusCode, string(body)
}

// FetchPlaylist fetches a media playlist and parses it, failing the test on
// any non-200 response or a body that is not a valid media playlist.
func (h *TestHarness) FetchPlaylist(path string) *ParsedPlaylist {
	h.t.Helper()

	status, body := h.Fetch(path)
	if status != http.StatusOK {
		h.t.Fatalf("GET %s: unexpected status code: %d", path, status)
	}

	parsed := ParsePlaylist(body)

	p, listType, err := m3u8.DecodeFrom(strings.NewReader(body), false)
	if err != nil {
		h.t.Fatalf("GET %s: response is not a valid playlist: %v\n%s", path, err, body)
	}
	media, ok := p.(*m3u8.MediaPlaylist)
	if listType != m3u8.MEDIA || !ok {
		h.t.Fatalf("GET %s: expected a media playlist", path)
	}
	if int(media.Count()) != len(parsed.Segments) {
		h.t.Fatalf("GET %s: decoder saw %d segments, parser saw %d", path, media.Count(), len(parsed.Segments))
	}

	return parsed
}

// ParsedPlaylist represents a parsed HLS playlist for testing.
type ParsedPlaylist struct {
	Version        int
	TargetDuration int
	MediaSequence  uint64
	Segments       []PlaylistSegment
	HasEndList     bool
}

// PlaylistSegment represents a segment in a playlist.
type PlaylistSegment struct {
	Duration      float64
	URL           string
	Discontinuity bool
}

// Filename returns the last path element of the segment URL.
func (s PlaylistSegment) Filename() string {
	return s.URL[strings.LastIndex(s.URL, "/")+1:]
}

// Filenames returns the segment file names in playlist order.
func (p *ParsedPlaylist) Filenames() []string {
	names := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		names[i] = seg.Filename()
	}
	return names
}

// ParsePlaylist parses an HLS playlist into a structured format.
func ParsePlaylist(content string) *ParsedPlaylist {
	playlist := &ParsedPlaylist{
		Segments: []PlaylistSegment{},
	}

	var currentSegment *PlaylistSegment
	var nextSegmentHasDiscontinuity bool

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-VERSION:"):
			fmt.Sscanf(line, "#EXT-X-VERSION:%d", &playlist.Version)

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			fmt.Sscanf(line, "#EXT-X-TARGETDURATION:%d", &playlist.TargetDuration)

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			fmt.Sscanf(line, "#EXT-X-MEDIA-SEQUENCE:%d", &playlist.MediaSequence)

		case line == "#EXT-X-ENDLIST":
			playlist.HasEndList = true

		case line == "#EXT-X-DISCONTINUITY":
			nextSegmentHasDiscontinuity = true

		case strings.HasPrefix(line, "#EXTINF:"):
			currentSegment = &PlaylistSegment{Discontinuity: nextSegmentHasDiscontinuity}
			nextSegmentHasDiscontinuity = false
			fmt.Sscanf(line, "#EXTINF:%f,", &currentSegment.Duration)

		case !strings.HasPrefix(line, "#"):
			if currentSegment != nil {
				currentSegment.URL = line
				playlist.Segments = append(playlist.Segments, *currentSegment)
				currentSegment = nil
			}
		}
	}

	return playlist
}

// createTestPlaylist creates a catalog index with the specified number of segments.
func createTestPlaylist(numSegments int, duration float64) string {
	var sb strings.Builder

	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&sb, "#EXT-X-TARGETDURATION:%d\n", int(duration+0.999))
	sb.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	for i := 0; i < numSegments; i++ {
		fmt.Fprintf(&sb, "#EXTINF:%.3f,\n", duration)
		fmt.Fprintf(&sb, "segment%03d.ts\n", i)
	}

	sb.WriteString("#EXT-X-ENDLIST\n")

	return sb.String()
}
