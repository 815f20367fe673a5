package services

import (
	"context"
	"strconv"
)

// MetadataSource is the remote catalog that artists, albums and tracks are synced from.
//
// Implementations are rate limited and fallible: errors wrap [shared.ErrEntityNotFound],
// [shared.ErrTimeout], [shared.ErrServiceUnavailable] or [shared.ErrAPIRequest].
type MetadataSource interface {
	// SearchArtist returns candidates for name, best first.
	SearchArtist(ctx context.Context, name string) ([]Artist, error)

	// GetArtist retrieves one artist by MusicBrainz ID.
	GetArtist(ctx context.Context, mbid string) (*Artist, error)

	// GetArtistReleaseGroups lists the albums, EPs and singles credited to the artist.
	GetArtistReleaseGroups(ctx context.Context, mbid string) ([]ReleaseGroup, error)

	// GetReleaseGroup retrieves a release group with the track list of its representative release.
	GetReleaseGroup(ctx context.Context, id string) (*ReleaseGroup, error)

	// Name returns the name of the source (e.g. "MusicBrainz")
	Name() string
}

// Artist is an artist record from the metadata source
type Artist struct {
	MBID     string
	Name     string
	SortName string
	Score    int // search relevance, 0-100
}

// ReleaseGroup is an album-level record from the metadata source
type ReleaseGroup struct {
	ID               string
	Title            string
	PrimaryType      string
	FirstReleaseDate string
	ArtistMBID       string
	ArtistName       string
	Tracks           []Recording
}

// Year parses the leading year of FirstReleaseDate, or 0.
func (rg *ReleaseGroup) Year() int {
	if len(rg.FirstReleaseDate) < 4 {
		return 0
	}
	y, err := strconv.Atoi(rg.FirstReleaseDate[:4])
	if err != nil {
		return 0
	}
	return y
}

// Recording is one track of a release
type Recording struct {
	MBID     string
	Title    string
	Position int
	Disc     int
	Duration int // Duration in seconds
}
