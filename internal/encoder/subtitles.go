package encoder

import (
	"strings"

	"github.com/alchemist-io/alchemist/internal/analyzer"
)

// mkvCompatibleSubtitleCodecs lists subtitle codecs that can be muxed into
// an MKV container, per FFmpeg's matroska.c codec tag mapping.
var mkvCompatibleSubtitleCodecs = map[string]bool{
	"subrip":             true,
	"srt":                true,
	"ass":                true,
	"ssa":                true,
	"text":               true,
	"dvd_subtitle":       true,
	"dvb_subtitle":       true,
	"hdmv_pgs_subtitle":  true,
	"hdmv_text_subtitle": true,
	"arib_caption":       true,
	"webvtt":             true,
}

// IsMKVCompatible reports whether a subtitle codec can be carried in MKV.
// Unknown codecs report false: dropping an unrecognized track is safer
// than letting it fail the mux.
func IsMKVCompatible(codecName string) bool {
	return mkvCompatibleSubtitleCodecs[strings.ToLower(strings.TrimSpace(codecName))]
}

// FilterMKVCompatible partitions subtitle streams into the absolute stream
// indices safe to carry into an MKV output and the distinct codec names of
// tracks that must be dropped.
//
// Return semantics matter to BuildArgsInput.SubtitleMap: nil input (no
// subtitle streams probed) yields nil output, meaning "map all" upstream.
// Non-nil input always yields a non-nil, possibly empty, slice -- "map
// exactly these" even when that set is empty.
func FilterMKVCompatible(streams []analyzer.SubtitleStream) (keepIndices []int, droppedCodecs []string) {
	if streams == nil {
		return nil, nil
	}

	keepIndices = make([]int, 0, len(streams))
	seen := make(map[string]bool)

	for _, s := range streams {
		if IsMKVCompatible(s.CodecName) {
			keepIndices = append(keepIndices, s.Index)
			continue
		}
		if !seen[s.CodecName] {
			seen[s.CodecName] = true
			droppedCodecs = append(droppedCodecs, s.CodecName)
		}
	}
	return keepIndices, droppedCodecs
}
