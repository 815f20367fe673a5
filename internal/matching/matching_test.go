package matching

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

func TestCalculateSimilarity(t *testing.T) {
	tc := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Come Together", "Come Together", 1},
		{"case and spacing", "  come   TOGETHER ", "Come Together", 1},
		{"apostrophe variants", "Don’t Let Me Down", "Don't Let Me Down", 1},
		{"accents", "Björk", "Bjork", 1},
		{"both empty", "", "", 1},
		{"whitespace only differs", "   ", "", 0},
		{"one empty", "Help!", "", 0},
		{"one substitution", "abcd", "abce", 0.75},
		{"disjoint", "abc", "xyz", 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCalculateSimilarityProperties(t *testing.T) {
	inputs := []string{"", " ", "a", "Abbey Road", "abbey road (remastered)", "Let It Be", "Let It Bee", "Ænima", "Sigur Rós", "ágætis byrjun"}

	for _, a := range inputs {
		if got := CalculateSimilarity(a, a); got != 1 {
			t.Errorf("similarity(%q, %q) = %v, expected 1", a, a, got)
		}
		for _, b := range inputs {
			ab, ba := CalculateSimilarity(a, b), CalculateSimilarity(b, a)
			if ab != ba {
				t.Errorf("similarity not symmetric for %q, %q: %v != %v", a, b, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("similarity(%q, %q) = %v out of range", a, b, ab)
			}
		}
	}
}

func TestSimplifyTitle(t *testing.T) {
	tc := []struct {
		in, want string
	}{
		{"Come Together (Remastered 2009)", "come together"},
		{"Get Back [Live]", "get back"},
		{"Something (feat. Someone)", "something"},
		{"Here Comes the Sun", "here comes the sun"},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := SimplifyTitle(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParsePathHints(t *testing.T) {
	tc := []struct {
		name string
		path string
		want PathHints
	}{
		{
			name: "artist album track layout",
			path: "The Beatles/Abbey Road (1969)/01 - Come Together.mp3",
			want: PathHints{Artist: "The Beatles", Album: "Abbey Road", Title: "Come Together", TrackNumber: 1, Year: 1969},
		},
		{
			name: "year prefixed album",
			path: "Radiohead/1997 - OK Computer/02 Paranoid Android.flac",
			want: PathHints{Artist: "Radiohead", Album: "OK Computer", Title: "Paranoid Android", TrackNumber: 2, Year: 1997},
		},
		{
			name: "flat artist dash title",
			path: "Nina Simone - Feeling Good.mp3",
			want: PathHints{Artist: "Nina Simone", Title: "Feeling Good"},
		},
		{
			name: "underscores",
			path: "Loose/track_one.ogg",
			want: PathHints{Album: "Loose", Title: "track one"},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParsePathHints(tt.path); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func catalogTrack(id int64, artist, title, album string, duration, year int) *models.Track {
	return &models.Track{ID: id, ArtistName: artist, Title: title, AlbumTitle: album, Duration: duration, ReleaseYear: year}
}

func TestScorer(t *testing.T) {
	scorer := DefaultScorer()
	track := catalogTrack(1, "The Beatles", "Come Together", "Abbey Road", 259, 1969)

	t.Run("ExactShortCircuit", func(t *testing.T) {
		u := &models.UnmatchedTrack{Artist: "the beatles", Title: "COME  TOGETHER"}
		m := scorer.Score(track, u, PathHints{})
		if m.Score != ExactMatchScore {
			t.Errorf("expected %v, got %v", ExactMatchScore, m.Score)
		}
		if m.Reason != "Exact title match" {
			t.Errorf("unexpected reason %q", m.Reason)
		}
	})

	t.Run("DecoratedTitleIsNotExact", func(t *testing.T) {
		studio := catalogTrack(2, "The Beatles", "Yesterday", "Help!", 125, 1965)
		tc := []struct {
			name  string
			title string
		}{
			{"Live", "Yesterday (Live at the BBC)"},
			{"Remaster", "Yesterday (Remastered 2009)"},
			{"Demo", "Yesterday (Demo)"},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				u := &models.UnmatchedTrack{Artist: "The Beatles", Title: tt.title, Duration: 160}
				m := scorer.Score(studio, u, PathHints{})
				if m.Score >= ExactMatchScore {
					t.Errorf("expected a score below %v, got %v", ExactMatchScore, m.Score)
				}
				if m.Reason == "Exact title match" {
					t.Errorf("decorated title reported as exact")
				}
			})
		}
	})

	t.Run("DurationOutsideTolerancePenalized", func(t *testing.T) {
		score := func(duration int) float64 {
			u := &models.UnmatchedTrack{Artist: "The Beatles", Title: "Come Togther", Album: "Let It Be", Duration: duration}
			return scorer.Score(track, u, PathHints{}).Score
		}
		none := score(0)

		within, outside, far, farther := score(262), score(263), score(270), score(300)
		if within <= none {
			t.Errorf("expected a bonus within tolerance: %v <= %v", within, none)
		}
		if outside >= none {
			t.Errorf("expected a penalty just outside tolerance: %v >= %v", outside, none)
		}
		if far >= outside || farther >= far {
			t.Errorf("expected penalty to grow with the delta: %v, %v, %v", outside, far, farther)
		}
	})

	t.Run("SimilarTitle", func(t *testing.T) {
		u := &models.UnmatchedTrack{Artist: "The Beatles", Title: "Come Togther", Album: "Abbey Road", Duration: 260, Year: 1969}
		m := scorer.Score(track, u, PathHints{})
		if m.Score < 85 || m.Score >= ExactMatchScore {
			t.Errorf("expected a high fuzzy score below exact, got %v", m.Score)
		}
		if m.Reason != "Similar title match" {
			t.Errorf("unexpected reason %q", m.Reason)
		}
	})

	t.Run("DurationMismatchPenalized", func(t *testing.T) {
		close := &models.UnmatchedTrack{Artist: "The Beatles", Title: "Come Togther", Duration: 259}
		far := &models.UnmatchedTrack{Artist: "The Beatles", Title: "Come Togther", Duration: 600}
		if a, b := scorer.Score(track, close, PathHints{}).Score, scorer.Score(track, far, PathHints{}).Score; a <= b {
			t.Errorf("expected matching duration to score higher: %v <= %v", a, b)
		}
	})

	t.Run("HintsFillMissingTags", func(t *testing.T) {
		u := &models.UnmatchedTrack{}
		hints := ParsePathHints("The Beatles/Abbey Road/01 - Come Together.mp3")
		if m := scorer.Score(track, u, hints); m.Score != ExactMatchScore {
			t.Errorf("expected exact score from hints, got %v", m.Score)
		}
	})

	t.Run("NoTags", func(t *testing.T) {
		m := scorer.Score(track, &models.UnmatchedTrack{}, PathHints{})
		if m.Score != 0 {
			t.Errorf("expected zero, got %v", m.Score)
		}
	})

	t.Run("Bounds", func(t *testing.T) {
		u := &models.UnmatchedTrack{Artist: "zzz", Title: "qqq", Album: "xxx", Duration: 5000, Year: 1900}
		if m := scorer.Score(track, u, PathHints{}); m.Score < 0 || m.Score > 100 {
			t.Errorf("score out of range: %v", m.Score)
		}
	})
}

type countingStep struct {
	name  string
	match Match
	err   error
	calls int
}

func (s *countingStep) Name() string { return s.name }

func (s *countingStep) Match(context.Context, *models.UnmatchedTrack, Options) (Match, error) {
	s.calls++
	return s.match, s.err
}

func TestAssociationStepChain(t *testing.T) {
	ctx := context.Background()
	u := &models.UnmatchedTrack{ID: 1, Artist: "The Beatles", Title: "Come Together"}
	track := catalogTrack(7, "The Beatles", "Come Together", "Abbey Road", 259, 1969)

	t.Run("FirstResolvingStepWins", func(t *testing.T) {
		first := &countingStep{name: "first", match: Match{Track: track, Score: 95, Reason: "Exact title match"}}
		second := &countingStep{name: "second", match: Match{Track: track, Score: 50}}

		m, err := NewChain(first, second).Execute(ctx, u, Options{}, nil)
		if err != nil {
			t.Fatalf("failed to execute chain: %v", err)
		}
		if m.Track != track || m.Score != 95 {
			t.Errorf("expected first step's match, got %+v", m)
		}
		if first.calls != 1 || second.calls != 0 {
			t.Errorf("expected calls 1/0, got %d/%d", first.calls, second.calls)
		}
	})

	t.Run("DefersToNextStep", func(t *testing.T) {
		first := &countingStep{name: "first"}
		second := &countingStep{name: "second", match: Match{Track: track, Score: 70, Reason: "Similar title match"}}

		m, err := NewChain(first, second).Execute(ctx, u, Options{}, nil)
		if err != nil {
			t.Fatalf("failed to execute chain: %v", err)
		}
		if !m.Found() || first.calls != 1 || second.calls != 1 {
			t.Errorf("expected second step to resolve, got %+v (calls %d/%d)", m, first.calls, second.calls)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		m, err := NewChain(&countingStep{name: "a"}, &countingStep{name: "b"}).Execute(ctx, u, Options{}, nil)
		if err != nil {
			t.Fatalf("failed to execute chain: %v", err)
		}
		if m.Found() {
			t.Errorf("expected no match, got %+v", m)
		}
	})

	t.Run("StepFailureAborts", func(t *testing.T) {
		boom := errors.New("catalog unavailable")
		second := &countingStep{name: "second"}

		_, err := NewChain(&countingStep{name: "first", err: boom}, second).Execute(ctx, u, Options{}, nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected step error, got %v", err)
		}
		if second.calls != 0 {
			t.Error("expected chain to stop after a failing step")
		}
	})
}

type fakeFinder struct {
	tracks []*models.Track
	calls  map[string]int
}

func (f *fakeFinder) record(name string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeFinder) FindByArtistAndTitle(_ context.Context, artist, title string) ([]*models.Track, error) {
	f.record("exact")
	var out []*models.Track
	for _, t := range f.tracks {
		if Normalize(t.ArtistName) == Normalize(artist) && Normalize(t.Title) == Normalize(title) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeFinder) ListByArtistName(_ context.Context, artist string) ([]*models.Track, error) {
	f.record("artist")
	var out []*models.Track
	for _, t := range f.tracks {
		if Normalize(t.ArtistName) == Normalize(artist) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeFinder) ListByAlbumTitle(_ context.Context, album string) ([]*models.Track, error) {
	f.record("album")
	var out []*models.Track
	for _, t := range f.tracks {
		if Normalize(t.AlbumTitle) == Normalize(album) {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestDefaultChain(t *testing.T) {
	ctx := context.Background()
	finder := &fakeFinder{tracks: []*models.Track{
		catalogTrack(1, "The Beatles", "Come Together", "Abbey Road", 259, 1969),
		catalogTrack(2, "The Beatles", "Something", "Abbey Road", 182, 1969),
		catalogTrack(3, "The Beatles", "Come and Get It", "Anthology 3", 150, 1996),
	}}
	chain := DefaultChain(finder, DefaultScorer(), 50)

	if got := chain.Steps(); len(got) != 3 || got[0] != "exact" || got[2] != "path-hint" {
		t.Fatalf("unexpected step order %v", got)
	}

	t.Run("Exact", func(t *testing.T) {
		m, err := chain.Execute(ctx, &models.UnmatchedTrack{Artist: "The Beatles", Title: "come together"}, Options{}, nil)
		if err != nil {
			t.Fatalf("failed to execute chain: %v", err)
		}
		if m.Track == nil || m.Track.ID != 1 || m.Score != ExactMatchScore {
			t.Errorf("expected exact match on track 1, got %+v", m)
		}
	})

	t.Run("FuzzyWithinArtist", func(t *testing.T) {
		m, err := chain.Execute(ctx, &models.UnmatchedTrack{Artist: "The Beatles", Title: "Somethin", Duration: 183}, Options{FindMultipleMatches: true}, nil)
		if err != nil {
			t.Fatalf("failed to execute chain: %v", err)
		}
		if m.Track == nil || m.Track.ID != 2 {
			t.Fatalf("expected track 2, got %+v", m)
		}
		if len(m.Candidates) == 0 || m.Candidates[0].Track.ID != 2 {
			t.Errorf("expected candidates ranked best first, got %+v", m.Candidates)
		}
	})

	t.Run("PathHints", func(t *testing.T) {
		hints := ParsePathHints("Unknown Artist/Abbey Road/02 Something.mp3")
		m, err := chain.Execute(ctx, &models.UnmatchedTrack{}, Options{Hints: hints}, nil)
		if err != nil {
			t.Fatalf("failed to execute chain: %v", err)
		}
		if m.Track == nil || m.Track.ID != 2 {
			t.Errorf("expected path hints to find track 2, got %+v", m)
		}
	})
}

type flags map[string]any

func (f flags) Bool(key string) bool {
	v, _ := f[key].(bool)
	return v
}

func (f flags) Float(key string) float64 {
	v, _ := f[key].(float64)
	return v
}

func TestPolicy(t *testing.T) {
	track := catalogTrack(1, "The Beatles", "Come Together", "Abbey Road", 259, 1969)

	tc := []struct {
		name  string
		flags flags
		match Match
		want  Decision
	}{
		{"below threshold suggests", flags{shared.FlagAutoAssociate: true, shared.FlagMinScore: 85.0}, Match{Track: track, Score: 84}, DecisionSuggest},
		{"at threshold binds", flags{shared.FlagAutoAssociate: true, shared.FlagMinScore: 85.0}, Match{Track: track, Score: 85}, DecisionBind},
		{"auto association off", flags{shared.FlagAutoAssociate: false, shared.FlagMinScore: 85.0}, Match{Track: track, Score: 99}, DecisionSuggest},
		{"default threshold", flags{shared.FlagAutoAssociate: true}, Match{Track: track, Score: 84.9}, DecisionSuggest},
		{"nothing found", flags{shared.FlagAutoAssociate: true}, Match{}, DecisionNone},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := PolicyFromFlags(tt.flags).Decide(tt.match); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
