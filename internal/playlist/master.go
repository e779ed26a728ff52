package playlist

import (
	"fmt"

	"github.com/agleyzer/hlsloop/internal/variant"
	"github.com/grafov/m3u8"
)

// RenderMaster creates an HLS master playlist listing the given variants.
func RenderMaster(variants []variant.Variant) (string, error) {
	if len(variants) == 0 {
		return "", fmt.Errorf("cannot create master playlist with zero variants")
	}

	master := m3u8.NewMasterPlaylist()
	for _, v := range variants {
		master.Append(v.PlaylistURI, nil, m3u8.VariantParams{
			ProgramId: v.ProgramID,
			Bandwidth: v.Bandwidth,
			Codecs:    v.Codecs,
		})
	}

	return master.Encode().String(), nil
}
