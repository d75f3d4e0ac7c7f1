package recorder

import (
	"strings"
)

// Format is a recordable container/codec combination.
type Format struct {
	MIMEType string
	Ext      string

	// Builtin formats are written in-process and need no external tool.
	Builtin bool

	muxer      string
	videoCodec string
	audioCodec string
	videoArgs  []string
	muxerArgs  []string
}

// formats lists every MIME type the recorder knows how to produce. Keys
// are normalized with normalizeMIME.
var formats = map[string]Format{
	"video/webm;codecs=vp9,opus": {
		Ext:        "webm",
		muxer:      "webm",
		videoCodec: "libvpx-vp9",
		audioCodec: "libopus",
		videoArgs:  []string{"-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"},
	},
	"video/webm;codecs=vp8,opus": {
		Ext:        "webm",
		muxer:      "webm",
		videoCodec: "libvpx",
		audioCodec: "libopus",
		videoArgs:  []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/webm": {
		Ext:        "webm",
		muxer:      "webm",
		videoCodec: "libvpx",
		audioCodec: "libopus",
		videoArgs:  []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/mp4": {
		Ext:        "mp4",
		muxer:      "mp4",
		videoCodec: "libx264",
		audioCodec: "aac",
		videoArgs:  []string{"-preset", "veryfast", "-tune", "stillimage"},
		// A seekable trailer is impossible on a pipe.
		muxerArgs: []string{"-movflags", "frag_keyframe+empty_moov"},
	},
	"video/x-msvideo;codecs=mjpeg,pcm": {
		Ext:     "avi",
		Builtin: true,
	},
}

// normalizeMIME lowercases and strips blanks so "video/webm; codecs=vp9, opus"
// and "video/webm;codecs=vp9,opus" match.
func normalizeMIME(mime string) string {
	return strings.ToLower(strings.Join(strings.Fields(mime), ""))
}

// lookupFormat returns the format for mime, if known.
func lookupFormat(mime string) (Format, bool) {
	key := normalizeMIME(mime)
	f, ok := formats[key]
	if !ok {
		return Format{}, false
	}
	f.MIMEType = key
	return f, true
}

// ExtensionFor returns the file extension for a MIME type. Unknown types
// fall back to the subtype, or "bin".
func ExtensionFor(mime string) string {
	if f, ok := lookupFormat(mime); ok {
		return f.Ext
	}
	base, _, _ := strings.Cut(normalizeMIME(mime), ";")
	if _, sub, ok := strings.Cut(base, "/"); ok && sub != "" {
		return strings.TrimPrefix(sub, "x-")
	}
	return "bin"
}
