// Package variant defines the variant streams advertised by the master playlist.
package variant

// Variant represents a single variant stream in an HLS master playlist.
// Each variant typically represents a different quality level (bitrate/resolution).
type Variant struct {
	// ProgramID is the PROGRAM-ID attribute of the stream
	ProgramID uint32

	// Bandwidth is the peak segment bitrate in bits per second
	Bandwidth uint32

	// Codecs is the codec string (e.g., "mp4a.40.2, avc1.4d401f")
	Codecs string

	// PlaylistURI is the URI of the variant's media playlist, relative to the
	// master playlist
	PlaylistURI string
}

// Default returns the fixed four-rung ladder served at /variant.m3u8.
// Each rung points at the live playlist of channels 1 through 4.
func Default() []Variant {
	return []Variant{
		{ProgramID: 1, Bandwidth: 232370, Codecs: "mp4a.40.2, avc1.4d4015", PlaylistURI: "playlist1.m3u8"},
		{ProgramID: 1, Bandwidth: 649879, Codecs: "mp4a.40.2, avc1.4d401e", PlaylistURI: "playlist2.m3u8"},
		{ProgramID: 1, Bandwidth: 991714, Codecs: "mp4a.40.2, avc1.4d401e", PlaylistURI: "playlist3.m3u8"},
		{ProgramID: 1, Bandwidth: 1927833, Codecs: "mp4a.40.2, avc1.4d401f", PlaylistURI: "playlist4.m3u8"},
	}
}
