package matching

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curator/internal/models"
)

// Options are mode flags carried through a chain run. They never change step order.
type Options struct {
	DryRun              bool
	FindMultipleMatches bool
	Hints               PathHints
}

// Step is one matching strategy.
//
// A step resolves by returning a Match with a track, defers by returning an empty Match,
// and fails by returning an error, which aborts the chain.
type Step interface {
	Name() string
	Match(ctx context.Context, u *models.UnmatchedTrack, opts Options) (Match, error)
}

// TrackFinder is the catalog lookup used by the built-in steps.
type TrackFinder interface {
	FindByArtistAndTitle(ctx context.Context, artist, title string) ([]*models.Track, error)
	ListByArtistName(ctx context.Context, artist string) ([]*models.Track, error)
	ListByAlbumTitle(ctx context.Context, album string) ([]*models.Track, error)
}

// AssociationStepChain runs its steps in order and stops at the first one that resolves a track.
type AssociationStepChain struct {
	steps []Step
}

// NewChain builds a chain over steps in the given order.
func NewChain(steps ...Step) *AssociationStepChain {
	return &AssociationStepChain{steps: steps}
}

// DefaultChain is exact artist+title, then fuzzy title within the artist, then path-hint album lookup.
func DefaultChain(finder TrackFinder, scorer *Scorer, minCandidate float64) *AssociationStepChain {
	return NewChain(
		&ExactStep{Finder: finder, Scorer: scorer},
		&ArtistTitleStep{Finder: finder, Scorer: scorer, MinScore: minCandidate},
		&PathHintStep{Finder: finder, Scorer: scorer, MinScore: minCandidate},
	)
}

// Steps returns the step names in execution order.
func (c *AssociationStepChain) Steps() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs the chain against u. The returned Match has a nil Track when no step resolved.
func (c *AssociationStepChain) Execute(ctx context.Context, u *models.UnmatchedTrack, opts Options, logger *log.Logger) (Match, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	for _, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}

		m, err := step.Match(ctx, u, opts)
		if err != nil {
			return Match{}, fmt.Errorf("step %s: %w", step.Name(), err)
		}
		if m.Found() {
			logger.Debug("step resolved", "step", step.Name(), "track_id", m.Track.ID, "score", m.Score, "reason", m.Reason)
			return m, nil
		}
		logger.Debug("step deferred", "step", step.Name())
	}

	return Match{Reason: "No match"}, nil
}

// ExactStep looks up tracks whose artist and title equal the tags, ignoring case.
type ExactStep struct {
	Finder TrackFinder
	Scorer *Scorer
}

func (s *ExactStep) Name() string { return "exact" }

func (s *ExactStep) Match(ctx context.Context, u *models.UnmatchedTrack, opts Options) (Match, error) {
	artist := firstNonEmpty(u.Artist, opts.Hints.Artist)
	title := firstNonEmpty(u.Title, opts.Hints.Title)
	if artist == "" || title == "" {
		return Match{}, nil
	}

	tracks, err := s.Finder.FindByArtistAndTitle(ctx, artist, title)
	if err != nil {
		return Match{}, err
	}
	return best(s.Scorer, tracks, u, opts, 0), nil
}

// ArtistTitleStep scores every track by the tagged artist and keeps the best above MinScore.
type ArtistTitleStep struct {
	Finder   TrackFinder
	Scorer   *Scorer
	MinScore float64
}

func (s *ArtistTitleStep) Name() string { return "artist-title" }

func (s *ArtistTitleStep) Match(ctx context.Context, u *models.UnmatchedTrack, opts Options) (Match, error) {
	artist := firstNonEmpty(u.Artist, opts.Hints.Artist)
	if artist == "" || firstNonEmpty(u.Title, opts.Hints.Title) == "" {
		return Match{}, nil
	}

	tracks, err := s.Finder.ListByArtistName(ctx, artist)
	if err != nil {
		return Match{}, err
	}
	return best(s.Scorer, tracks, u, opts, s.MinScore), nil
}

// PathHintStep searches the album named by the tag or the directory and scores its tracks.
type PathHintStep struct {
	Finder   TrackFinder
	Scorer   *Scorer
	MinScore float64
}

func (s *PathHintStep) Name() string { return "path-hint" }

func (s *PathHintStep) Match(ctx context.Context, u *models.UnmatchedTrack, opts Options) (Match, error) {
	var tracks []*models.Track
	for _, album := range dedupe(u.Album, opts.Hints.Album) {
		found, err := s.Finder.ListByAlbumTitle(ctx, album)
		if err != nil {
			return Match{}, err
		}
		tracks = append(tracks, found...)
	}
	return best(s.Scorer, tracks, u, opts, s.MinScore), nil
}

// best scores tracks and returns the highest at or above floor.
// With FindMultipleMatches every qualifying candidate is attached, best first.
func best(scorer *Scorer, tracks []*models.Track, u *models.UnmatchedTrack, opts Options, floor float64) Match {
	var scored []Match
	seen := make(map[int64]bool)
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		if m := scorer.Score(t, u, opts.Hints); m.Score >= floor {
			scored = append(scored, m)
		}
	}
	if len(scored) == 0 {
		return Match{}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	top := scored[0]
	if opts.FindMultipleMatches {
		top.Candidates = scored
	}
	return top
}

func dedupe(vals ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range vals {
		k := Normalize(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}
