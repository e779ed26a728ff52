// Package config assembles server settings from a .env file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/agleyzer/hlsloop/internal/catalog"
	"github.com/agleyzer/hlsloop/internal/playlist"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "HLSLOOP_"

// Config holds the settings for one server process.
type Config struct {
	Port           int
	ContentRoot    string
	CatalogDir     string
	WindowSize     int
	TargetDuration int
	LoopAfter      time.Duration
	LogLevel       string
	LogFormat      string
	Verbose        bool
	Discontinuity  bool
	RaftID         string
	RaftBind       string
	RaftPeers      []string
	ShowVersion    bool
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	layout := catalog.DefaultLayout()
	return Config{
		Port:           5000,
		ContentRoot:    layout.Root,
		CatalogDir:     layout.Dir,
		WindowSize:     3,
		TargetDuration: playlist.DefaultTargetDuration,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads .env from the working directory (a missing file is fine), then
// HLSLOOP_* environment variables, then args. It does not validate.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.applyFlags(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Clustered reports whether Raft settings were given.
func (c Config) Clustered() bool {
	return c.RaftBind != ""
}

// Layout returns the catalog layout for the configured content directories.
func (c Config) Layout() catalog.Layout {
	layout := catalog.DefaultLayout()
	layout.Root = c.ContentRoot
	layout.Dir = c.CatalogDir
	return layout
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.ContentRoot == "" {
		return fmt.Errorf("content root is required")
	}

	if c.WindowSize < 1 {
		return fmt.Errorf("window size must be at least 1, got %d", c.WindowSize)
	}

	if c.TargetDuration < 1 {
		return fmt.Errorf("target duration must be at least 1, got %d", c.TargetDuration)
	}

	if c.LoopAfter < 0 {
		return fmt.Errorf("loop-after must not be negative, got %s", c.LoopAfter)
	}

	if c.RaftBind == "" {
		if c.RaftID != "" || len(c.RaftPeers) > 0 {
			return fmt.Errorf("raft-bind is required when raft-id or raft-peers is set")
		}
		return nil
	}

	if len(c.RaftPeers) == 0 {
		return fmt.Errorf("raft-peers is required when raft-bind is set")
	}

	if c.RaftID == "" {
		c.RaftID = c.RaftBind
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("PORT", v, err)
		}
		c.Port = n
	}
	if v, ok := lookupEnv("CONTENT_ROOT"); ok {
		c.ContentRoot = v
	}
	if v, ok := lookupEnv("CATALOG_DIR"); ok {
		c.CatalogDir = v
	}
	if v, ok := lookupEnv("WINDOW_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("WINDOW_SIZE", v, err)
		}
		c.WindowSize = n
	}
	if v, ok := lookupEnv("TARGET_DURATION"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("TARGET_DURATION", v, err)
		}
		c.TargetDuration = n
	}
	if v, ok := lookupEnv("LOOP_AFTER"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("LOOP_AFTER", v, err)
		}
		c.LoopAfter = d
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookupEnv("LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := lookupEnv("DISCONTINUITY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("DISCONTINUITY", v, err)
		}
		c.Discontinuity = b
	}
	if v, ok := lookupEnv("RAFT_ID"); ok {
		c.RaftID = v
	}
	if v, ok := lookupEnv("RAFT_BIND"); ok {
		c.RaftBind = v
	}
	if v, ok := lookupEnv("RAFT_PEERS"); ok {
		c.RaftPeers = splitPeers(v)
	}

	return nil
}

func (c *Config) applyFlags(args []string) error {
	flags := flag.NewFlagSet("hlsloop", flag.ContinueOnError)

	peers := strings.Join(c.RaftPeers, ",")

	flags.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	flags.StringVar(&c.ContentRoot, "content-root", c.ContentRoot, "Directory served under /static/")
	flags.StringVar(&c.CatalogDir, "catalog-dir", c.CatalogDir, "Directory under the content root holding gear<id> channels")
	flags.IntVar(&c.WindowSize, "window-size", c.WindowSize, "Number of segments in each live window")
	flags.IntVar(&c.TargetDuration, "target-duration", c.TargetDuration, "Value of #EXT-X-TARGETDURATION in seconds")
	flags.DurationVar(&c.LoopAfter, "loop-after", c.LoopAfter, "Maximum duration of content to use before looping (e.g., '10s', '1m30s'); 0 uses all segments")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
	flags.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text or json")
	flags.BoolVar(&c.Verbose, "verbose", c.Verbose, "Enable verbose logging (same as -log-level debug)")
	flags.BoolVar(&c.Discontinuity, "discontinuity", c.Discontinuity, "Emit #EXT-X-DISCONTINUITY where a window wraps to the start of the loop")
	flags.StringVar(&c.RaftID, "raft-id", c.RaftID, "Node name shown in logs and /health (defaults to -raft-bind); Raft identifies members by address")
	flags.StringVar(&c.RaftBind, "raft-bind", c.RaftBind, "Raft bind address (host:port); enables clustering")
	flags.StringVar(&peers, "raft-peers", peers, "Comma-separated Raft peer addresses, including this node")
	flags.BoolVar(&c.ShowVersion, "version", false, "Show version and exit")

	flags.Usage = func() {
		out := flags.Output()
		fmt.Fprintf(out, "hlsloop - looping HLS channel server\n\n")
		fmt.Fprintf(out, "Usage: hlsloop [options]\n\n")
		fmt.Fprintf(out, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(out, "\nEvery option can also be set as %s<NAME> in the environment or a .env file,\n", EnvPrefix)
		fmt.Fprintf(out, "e.g. %sWINDOW_SIZE=5.\n", EnvPrefix)
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  hlsloop --content-root ./static\n")
		fmt.Fprintf(out, "  hlsloop --window-size 5 --loop-after 1m\n")
		fmt.Fprintf(out, "  hlsloop --raft-bind 10.0.0.1:7000 --raft-peers 10.0.0.1:7000,10.0.0.2:7000,10.0.0.3:7000\n")
	}

	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flags.Args())
	}

	c.RaftPeers = splitPeers(peers)
	return nil
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envError(name, value string, err error) error {
	return fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, name, value, err)
}

func splitPeers(s string) []string {
	var peers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
