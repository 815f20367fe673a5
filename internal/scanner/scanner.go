package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bogem/id3v2/v2"

	"github.com/desertthunder/curator/internal/matching"
	"github.com/desertthunder/curator/internal/shared"
)

// DefaultExtensions are the audio file types scanned when none are configured.
var DefaultExtensions = []string{".mp3", ".flac", ".m4a", ".ogg", ".opus", ".wav"}

// File is an audio file found under a library root.
type File struct {
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
}

// Tags are the track fields read from a file's metadata, or guessed from its path.
type Tags struct {
	Artist      string
	Title       string
	Album       string
	TrackNumber int
	Year        int
	Duration    int // seconds
}

// Scanner walks library roots for audio files.
type Scanner struct {
	extensions map[string]bool
}

// New creates a scanner accepting the given extensions (case-insensitive, with leading dot).
func New(extensions []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	s := &Scanner{extensions: make(map[string]bool, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.extensions[ext] = true
	}
	return s
}

// Accepts reports whether path has a scanned extension.
func (s *Scanner) Accepts(path string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(path))]
}

// Walk calls fn for every audio file under root. Hidden directories are skipped.
// Walking stops at the first error from fn or when ctx is done.
func (s *Scanner) Walk(ctx context.Context, root string, fn func(File) error) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: library path %s: %v", shared.ErrInvalidInput, root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.Accepts(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		return fn(File{Path: path, RelPath: rel, Size: info.Size(), ModTime: info.ModTime().UTC()})
	})
}

// ReadTags reads ID3v2 frames from MP3 files and fills any missing field from the path
// relative to root (Artist/Album/NN - Title.ext).
func ReadTags(path, root string) (Tags, error) {
	var tags Tags

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
		if err != nil {
			return tags, fmt.Errorf("failed to read tags from %s: %w", path, err)
		}
		defer tag.Close()

		tags.Artist = strings.TrimSpace(tag.Artist())
		tags.Title = strings.TrimSpace(tag.Title())
		tags.Album = strings.TrimSpace(tag.Album())
		tags.Year = leadingInt(tag.Year())
		tags.TrackNumber = leadingInt(tag.GetTextFrame(tag.CommonID("Track number/Position in set")).Text)
		tags.Duration = leadingInt(tag.GetTextFrame(tag.CommonID("Length")).Text) / 1000
	}

	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}

	h := matching.ParsePathHints(rel)
	if tags.Artist == "" {
		tags.Artist = h.Artist
	}
	if tags.Title == "" {
		tags.Title = h.Title
	}
	if tags.Album == "" {
		tags.Album = h.Album
	}
	if tags.TrackNumber == 0 {
		tags.TrackNumber = h.TrackNumber
	}
	if tags.Year == 0 {
		tags.Year = h.Year
	}

	return tags, nil
}

// leadingInt parses the digits at the start of s, so "3/12" yields 3 and "1969-09-26" yields 1969.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
