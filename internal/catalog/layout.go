package catalog

import (
	"path"
	"path/filepath"
	"strconv"
)

// Layout describes where channel catalogs and their media files live.
//
// On disk a channel's index is Root/Dir/gear<id>/IndexName. In playlists the
// same files are addressed as URLPrefix/Dir/gear<id>/<file>.
type Layout struct {
	// Root is the filesystem directory holding all catalog directories
	Root string

	// Dir is the catalog directory under Root (e.g., "bipbop_4x3")
	Dir string

	// IndexName is the per-channel index file name
	IndexName string

	// URLPrefix is the path prefix under which Root is served over HTTP
	URLPrefix string
}

// DefaultLayout returns the layout used when nothing is configured.
func DefaultLayout() Layout {
	return Layout{
		Root:      "static",
		Dir:       "bipbop_4x3",
		IndexName: "prog_index.m3u8",
		URLPrefix: "static",
	}
}

// IndexPath returns the filesystem path of the channel's index file.
func (l Layout) IndexPath(channelID int) string {
	return filepath.Join(l.Root, l.Dir, gear(channelID), l.IndexName)
}

// ContentPath returns the relative URI of a segment file as written into
// playlists.
func (l Layout) ContentPath(channelID int, filename string) string {
	return path.Join(l.URLPrefix, l.Dir, gear(channelID), filename)
}

func gear(channelID int) string {
	return "gear" + strconv.Itoa(channelID)
}
