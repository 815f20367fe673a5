// Package scanner is the filesystem scan source: it walks library roots for audio files,
// reads their tags and watches roots for changes.
//
// Tags come from ID3v2 frames for MP3 files. Other formats, and MP3s with missing frames,
// fall back to hints parsed from the Artist/Album/NN - Title layout.
package scanner
