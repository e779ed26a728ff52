package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agleyzer/hlsloop/internal/clock"
	"github.com/agleyzer/hlsloop/internal/config"
	"github.com/agleyzer/hlsloop/internal/metrics"
	"github.com/agleyzer/hlsloop/internal/playlist"
)

const testIndex = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:10.0,
fileSequence0.ts
#EXTINF:10.0,
fileSequence1.ts
#EXTINF:10.0,
fileSequence2.ts
#EXTINF:10.0,
fileSequence3.ts
#EXT-X-ENDLIST
`

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.ContentRoot = t.TempDir()

	dir := filepath.Join(cfg.ContentRoot, cfg.CatalogDir, "gear0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create catalog dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "prog_index.m3u8"), []byte(testIndex), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	return cfg
}

func TestNewGenerator(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.New(clock.Fixed(epoch), func() time.Time { return epoch.Add(15 * time.Second) })

	generator, err := newGenerator(cfg, clk, logger, metrics.New())
	if err != nil {
		t.Fatalf("newGenerator() error = %v", err)
	}

	content, err := generator.Generate(0, playlist.Live)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// 15s into a 40s loop: segment 0 consumed, window starts at segment 1
	for _, want := range []string{
		"#EXT-X-MEDIA-SEQUENCE:1\n",
		"static/bipbop_4x3/gear0/fileSequence1.ts\n",
		"static/bipbop_4x3/gear0/fileSequence3.ts\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("playlist missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "fileSequence0.ts") {
		t.Errorf("playlist should not contain consumed segment:\n%s", content)
	}
}

func TestNewGenerator_LoopAfter(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoopAfter = 15 * time.Second
	cfg.WindowSize = 6

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.New(clock.Fixed(epoch), func() time.Time { return epoch })

	generator, err := newGenerator(cfg, clk, logger, nil)
	if err != nil {
		t.Fatalf("newGenerator() error = %v", err)
	}

	content, err := generator.Generate(0, playlist.Static)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if got := strings.Count(content, "#EXTINF:"); got != 2 {
		t.Errorf("expected 2 segments after loop-after trim, got %d:\n%s", got, content)
	}
	if !strings.Contains(logBuf.String(), "loop-after specified") {
		t.Error("expected loop-after to be logged")
	}

	stats := generator.Stats()
	if stats["cached_channels"] != 1 {
		t.Errorf("cached_channels = %v, want 1", stats["cached_channels"])
	}
}

func TestNewGenerator_InvalidWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.WindowSize = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if _, err := newGenerator(cfg, clock.New(clock.Fixed(time.Now()), nil), logger, nil); err == nil {
		t.Error("expected error for zero window size")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().String()
}

func TestStartCluster_ReturnsAgreedEpoch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft test in short mode")
	}

	cfg := testConfig(t)
	cfg.RaftBind = freeAddr(t)
	cfg.RaftPeers = []string{cfg.RaftBind}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	local := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	manager, agreed, err := startCluster(ctx, cfg, local, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("startCluster() error = %v", err)
	}
	defer manager.Shutdown()

	if !manager.Agreed() {
		t.Error("startCluster() returned before agreement")
	}
	if !agreed.Equal(local) {
		t.Errorf("agreed epoch = %v, want %v", agreed, local)
	}
}

func TestStartCluster_NoQuorumDoesNotServe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft test in short mode")
	}

	cfg := testConfig(t)
	cfg.RaftBind = freeAddr(t)
	// Two of three voters never come up, so no leader can be elected.
	cfg.RaftPeers = []string{cfg.RaftBind, freeAddr(t), freeAddr(t)}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	manager, _, err := startCluster(ctx, cfg, time.Now(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		manager.Shutdown()
		t.Fatal("startCluster() should fail without an agreed epoch")
	}
	if manager != nil {
		t.Error("startCluster() should not return a manager on error")
	}
}
