package playlist

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/clock"
	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/segment"
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}))
}

type staticSource map[int]segment.List

func (s staticSource) Load(channelID int) (segment.List, error) {
	list, ok := s[channelID]
	if !ok {
		return nil, catalog.ErrCatalogNotFound
	}
	return list, nil
}

// fakeNow is a settable clock reading.
type fakeNow struct {
	t time.Time
}

func (f *fakeNow) Now() time.Time { return f.t }

func newTestGenerator(t *testing.T, src catalog.Source, now *fakeNow, epoch time.Time) *Generator {
	t.Helper()

	g, err := NewGenerator(
		src,
		clock.New(clock.Fixed(epoch), now.Now),
		NewRenderer(catalog.DefaultLayout(), 11, false),
		3,
		createTestLogger(),
		metrics.New(),
	)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func abcSource() staticSource {
	return staticSource{
		0: segment.List{
			{Filename: "a.ts", Duration: 4.0, Index: 0},
			{Filename: "b.ts", Duration: 4.0, Index: 1},
			{Filename: "c.ts", Duration: 4.0, Index: 2},
		},
	}
}

func TestNewGenerator_InvalidWindowSize(t *testing.T) {
	_, err := NewGenerator(abcSource(), clock.New(clock.Fixed(time.Now()), nil),
		NewRenderer(catalog.DefaultLayout(), 11, false), 0, createTestLogger(), nil)
	if err == nil {
		t.Fatal("Expected error for zero window size, got nil")
	}
}

func TestGenerator_Generate_Live(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := &fakeNow{t: epoch.Add(5 * time.Second)}
	g := newTestGenerator(t, abcSource(), now, epoch)

	got, err := g.Generate(0, Live)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	want := `#EXTM3U
#EXT-X-TARGETDURATION:11
#EXT-X-VERSION:3
#EXT-X-MEDIA-SEQUENCE:1
#EXTINF:4,
static/bipbop_4x3/gear0/b.ts
#EXTINF:4,
static/bipbop_4x3/gear0/c.ts
#EXTINF:4,
static/bipbop_4x3/gear0/a.ts
`
	if got != want {
		t.Errorf("Generate() =\n%s\nwant\n%s", got, want)
	}

	// One loop and one second later the window restarts at a.ts.
	now.t = epoch.Add(13 * time.Second)
	got, err = g.Generate(0, Live)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(got, "#EXT-X-MEDIA-SEQUENCE:3\n#EXTINF:4,\nstatic/bipbop_4x3/gear0/a.ts\n") {
		t.Errorf("unexpected second-loop playlist:\n%s", got)
	}
}

func TestGenerator_Generate_Static(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := &fakeNow{t: epoch.Add(time.Hour)}
	g := newTestGenerator(t, abcSource(), now, epoch)

	got, err := g.Generate(0, Static)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.Contains(got, "#EXT-X-MEDIA-SEQUENCE:0\n") {
		t.Errorf("static playlist should have media sequence 0:\n%s", got)
	}
	if strings.Count(got, "#EXTINF:") != 3 || !strings.HasSuffix(got, "#EXT-X-ENDLIST\n") {
		t.Errorf("static playlist should list all segments and end:\n%s", got)
	}
}

func TestGenerator_Generate_Errors(t *testing.T) {
	epoch := time.Now()
	now := &fakeNow{t: epoch}
	src := staticSource{
		1: segment.List{
			{Filename: "y.ts", Duration: 0, Index: 0},
			{Filename: "z.ts", Duration: 0, Index: 1},
		},
		2: segment.List{},
	}
	g := newTestGenerator(t, src, now, epoch)

	tests := []struct {
		name      string
		channelID int
		wantErr   error
	}{
		{"missing channel", 9, catalog.ErrCatalogNotFound},
		{"zero duration", 1, catalog.ErrInvalidCatalog},
		{"no segments", 2, catalog.ErrEmptyCatalog},
	}

	for _, tt := range tests {
		for _, typ := range []Type{Static, Live, VOD} {
			t.Run(tt.name+"/"+typ.String(), func(t *testing.T) {
				got, err := g.Generate(tt.channelID, typ)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
				}
				if got != "" {
					t.Errorf("expected empty body on error, got %q", got)
				}
			})
		}
	}
}

func TestGenerator_Stats(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := &fakeNow{t: epoch.Add(90 * time.Second)}
	cache := catalog.NewCache(abcSource(), nil)
	g := newTestGenerator(t, cache, now, epoch)

	if _, err := g.Generate(0, Live); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	stats := g.Stats()
	if stats["window_size"].(int) != 3 {
		t.Errorf("Expected window size 3, got %v", stats["window_size"])
	}
	if stats["target_duration"].(int) != 11 {
		t.Errorf("Expected target duration 11, got %v", stats["target_duration"])
	}
	if stats["elapsed_seconds"].(float64) != 90 {
		t.Errorf("Expected elapsed 90, got %v", stats["elapsed_seconds"])
	}
	if stats["epoch"].(string) != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected epoch %v", stats["epoch"])
	}
	if stats["cached_channels"].(int) != 1 {
		t.Errorf("Expected 1 cached channel, got %v", stats["cached_channels"])
	}
}
