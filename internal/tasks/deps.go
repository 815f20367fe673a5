package tasks

import (
	"database/sql"

	"github.com/desertthunder/curator/internal/audio"
	"github.com/desertthunder/curator/internal/matching"
	"github.com/desertthunder/curator/internal/plugins"
	"github.com/desertthunder/curator/internal/repositories"
	"github.com/desertthunder/curator/internal/scanner"
	"github.com/desertthunder/curator/internal/services"
	"github.com/desertthunder/curator/internal/shared"
)

// Deps are the collaborators shared by all processors. Nothing is read from package state.
type Deps struct {
	Libraries  *repositories.LibraryRepository
	Artists    *repositories.ArtistRepository
	Albums     *repositories.AlbumRepository
	Tracks     *repositories.TrackRepository
	TrackFiles *repositories.TrackFileRepository
	Unmatched  *repositories.UnmatchedTrackRepository

	Metadata services.MetadataSource
	Cache    services.Cache // nil when response caching is off
	Scanner  *scanner.Scanner
	Analyzer audio.Analyzer
	Plugins  *plugins.Manager

	Scorer *matching.Scorer
	Chain  *matching.AssociationStepChain
	Flags  shared.Flags
}

// NewDeps wires the repositories and the default matching chain over db.
// Remote collaborators (metadata, cache, analyzer, plugins) are set by the caller.
func NewDeps(db *sql.DB, flags shared.Flags) *Deps {
	tracks := repositories.NewTrackRepository(db)
	scorer := matching.DefaultScorer()

	return &Deps{
		Libraries:  repositories.NewLibraryRepository(db),
		Artists:    repositories.NewArtistRepository(db),
		Albums:     repositories.NewAlbumRepository(db),
		Tracks:     tracks,
		TrackFiles: repositories.NewTrackFileRepository(db),
		Unmatched:  repositories.NewUnmatchedTrackRepository(db),
		Scanner:    scanner.New(nil),
		Scorer:     scorer,
		Chain:      matching.DefaultChain(tracks, scorer, candidateFloor),
		Flags:      flags,
	}
}

// candidateFloor is the lowest fuzzy score a chain step will return as a candidate.
// Results between it and the policy threshold become suggestions.
const candidateFloor = 60.0

func (d *Deps) policy() matching.Policy {
	return matching.PolicyFromFlags(d.Flags)
}
