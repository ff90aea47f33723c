package encoder

import (
	"testing"

	"github.com/alchemist-io/alchemist/internal/analyzer"
)

func TestIsMKVCompatible(t *testing.T) {
	tests := []struct {
		codec    string
		expected bool
	}{
		{"subrip", true},
		{"srt", true},
		{"ass", true},
		{"ssa", true},
		{"text", true},
		{"dvd_subtitle", true},
		{"dvb_subtitle", true},
		{"hdmv_pgs_subtitle", true},
		{"hdmv_text_subtitle", true},
		{"arib_caption", true},
		{"webvtt", true},

		{"mov_text", false},
		{"tx3g", false},
		{"eia_608", false},
		{"ttml", false},
		{"dvb_teletext", false},
		{"xsub", false},
		{"unknown_codec", false},
		{"", false},

		{"SRT", true},
		{"SUBRIP", true},
		{"AsS", true},
		{"MOV_TEXT", false},

		{" subrip ", true},
		{" mov_text ", false},
		{"  ass  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			if got := IsMKVCompatible(tt.codec); got != tt.expected {
				t.Errorf("IsMKVCompatible(%q) = %v, want %v", tt.codec, got, tt.expected)
			}
		})
	}
}

func TestFilterMKVCompatible(t *testing.T) {
	tests := []struct {
		name             string
		streams          []analyzer.SubtitleStream
		wantIndices      []int
		wantNilIndices   bool
		wantDroppedCount int
	}{
		{
			name:           "nil input returns nil",
			streams:        nil,
			wantIndices:    nil,
			wantNilIndices: true,
		},
		{
			name: "all compatible",
			streams: []analyzer.SubtitleStream{
				{Index: 2, CodecName: "subrip"},
				{Index: 3, CodecName: "ass"},
			},
			wantIndices: []int{2, 3},
		},
		{
			name: "all incompatible returns empty slice not nil",
			streams: []analyzer.SubtitleStream{
				{Index: 2, CodecName: "mov_text"},
				{Index: 3, CodecName: "eia_608"},
			},
			wantIndices:      []int{},
			wantDroppedCount: 2,
		},
		{
			name: "mixed compatible and incompatible",
			streams: []analyzer.SubtitleStream{
				{Index: 2, CodecName: "mov_text"},
				{Index: 3, CodecName: "subrip"},
				{Index: 4, CodecName: "eia_608"},
				{Index: 5, CodecName: "ass"},
			},
			wantIndices:      []int{3, 5},
			wantDroppedCount: 2,
		},
		{
			name:        "empty input returns empty slice not nil",
			streams:     []analyzer.SubtitleStream{},
			wantIndices: []int{},
		},
		{
			name: "duplicate incompatible codecs are deduplicated",
			streams: []analyzer.SubtitleStream{
				{Index: 2, CodecName: "mov_text"},
				{Index: 3, CodecName: "mov_text"},
				{Index: 4, CodecName: "mov_text"},
			},
			wantIndices:      []int{},
			wantDroppedCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices, dropped := FilterMKVCompatible(tt.streams)

			if tt.wantNilIndices && indices != nil {
				t.Errorf("expected nil indices, got %v", indices)
			}
			if !tt.wantNilIndices && indices == nil {
				t.Errorf("expected non-nil indices (empty slice), got nil")
			}

			if len(indices) != len(tt.wantIndices) {
				t.Errorf("got %d indices, want %d", len(indices), len(tt.wantIndices))
			}
			for i, idx := range indices {
				if i < len(tt.wantIndices) && idx != tt.wantIndices[i] {
					t.Errorf("indices[%d] = %d, want %d", i, idx, tt.wantIndices[i])
				}
			}

			if len(dropped) != tt.wantDroppedCount {
				t.Errorf("got %d dropped, want %d: %v", len(dropped), tt.wantDroppedCount, dropped)
			}
		})
	}
}

func TestFilterMKVCompatibleDroppedCodecOrderAndDedup(t *testing.T) {
	streams := []analyzer.SubtitleStream{
		{Index: 2, CodecName: "mov_text"},
		{Index: 3, CodecName: "subrip"},
		{Index: 4, CodecName: "eia_608"},
		{Index: 5, CodecName: "mov_text"},
	}

	_, dropped := FilterMKVCompatible(streams)

	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped codecs, got %d: %v", len(dropped), dropped)
	}
	if dropped[0] != "mov_text" {
		t.Errorf("dropped[0] = %q, want mov_text", dropped[0])
	}
	if dropped[1] != "eia_608" {
		t.Errorf("dropped[1] = %q, want eia_608", dropped[1])
	}
}
