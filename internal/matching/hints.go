package matching

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	// "01 - Title", "01. Title", "1-01 Title"
	trackPrefix = regexp.MustCompile(`^(?:\d+-)?(\d{1,3})\s*(?:[-._]\s*)?\s+(.+)$`)
	// "1969 - Abbey Road", "Abbey Road (1969)", "[1969] Abbey Road"
	yearPrefix = regexp.MustCompile(`^[\[\(]?(\d{4})[\]\)]?\s*-?\s*(.+)$`)
	yearSuffix = regexp.MustCompile(`^(.+?)\s*[\[\(](\d{4})[\]\)]$`)
)

// PathHints are artist/album/title guesses derived from an Artist/Album/NN - Title.ext layout.
type PathHints struct {
	Artist      string
	Album       string
	Title       string
	TrackNumber int
	Year        int
}

// ParsePathHints reads hints from the last three segments of path.
//
// A filename of the form "Artist - Title" takes precedence over the directory layout for the artist.
func ParsePathHints(path string) PathHints {
	var h PathHints

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := trackPrefix.FindStringSubmatch(name); m != nil {
		h.TrackNumber, _ = strconv.Atoi(m[1])
		name = m[2]
	}

	album := filepath.Base(filepath.Dir(path))
	artist := filepath.Base(filepath.Dir(filepath.Dir(path)))

	if before, after, ok := strings.Cut(name, " - "); ok {
		name = after
		h.Artist = strings.TrimSpace(before)
	}
	h.Title = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))

	if isSegment(album) {
		h.Album, h.Year = splitYear(album)
	}
	if h.Artist == "" && isSegment(artist) && isSegment(album) {
		h.Artist = artist
	}

	return h
}

func splitYear(s string) (string, int) {
	if m := yearSuffix.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[2])
		return strings.TrimSpace(m[1]), y
	}
	if m := yearPrefix.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return strings.TrimSpace(m[2]), y
	}
	return s, 0
}

func isSegment(s string) bool {
	return s != "" && s != "." && s != string(filepath.Separator)
}
