package matching

import (
	"math"

	"github.com/desertthunder/curator/internal/models"
)

// ExactMatchScore is awarded when normalized title and artist are identical.
const ExactMatchScore = 95.0

// fuzzyCeiling keeps any fuzzy score below an exact match.
const fuzzyCeiling = ExactMatchScore - 1

// Match is a scored candidate. A nil Track means no match.
type Match struct {
	Track  *models.Track `json:"track,omitempty"`
	Score  float64       `json:"score"`
	Reason string        `json:"reason"`

	// Candidates holds every scored candidate, best first, when multiple matches were requested.
	Candidates []Match `json:"candidates,omitempty"`
}

// Found reports whether m carries a track.
func (m Match) Found() bool { return m.Track != nil }

// Scorer combines weighted string similarities with duration and year closeness into a 0-100 score.
type Scorer struct {
	TitleWeight  float64
	ArtistWeight float64
	AlbumWeight  float64

	DurationTolerance int // seconds
	DurationBonus     float64
	DurationPenalty   float64 // full penalty, reached at 10x the tolerance

	YearTolerance int
	YearBonus     float64
	YearPenalty   float64
}

// DefaultScorer weighs the title highest.
func DefaultScorer() *Scorer {
	return &Scorer{
		TitleWeight:       0.55,
		ArtistWeight:      0.30,
		AlbumWeight:       0.15,
		DurationTolerance: 3,
		DurationBonus:     5,
		DurationPenalty:   10,
		YearTolerance:     1,
		YearBonus:         3,
		YearPenalty:       5,
	}
}

// Score rates how well track matches the tags of u. Empty tags fall back to the path hints;
// a field absent from both sides is left out of the weighting.
func (s *Scorer) Score(track *models.Track, u *models.UnmatchedTrack, hints PathHints) Match {
	title := firstNonEmpty(u.Title, hints.Title)
	artist := firstNonEmpty(u.Artist, hints.Artist)
	album := firstNonEmpty(u.Album, hints.Album)

	titleSim := TitleSimilarity(track.Title, title)
	artistSim := CalculateSimilarity(track.ArtistName, artist)

	exactTitle := title != "" && Normalize(track.Title) == Normalize(title)
	if exactTitle && artist != "" && Normalize(track.ArtistName) == Normalize(artist) {
		return Match{Track: track, Score: ExactMatchScore, Reason: "Exact title match"}
	}

	var weighted, total float64
	add := func(sim, weight float64, present bool) {
		if present {
			weighted += sim * weight
			total += weight
		}
	}
	add(titleSim, s.TitleWeight, title != "")
	add(artistSim, s.ArtistWeight, artist != "")
	add(CalculateSimilarity(track.AlbumTitle, album), s.AlbumWeight, album != "" && track.AlbumTitle != "")

	if total == 0 {
		return Match{Track: track, Score: 0, Reason: "No comparable tags"}
	}
	score := 100 * weighted / total

	if u.Duration > 0 && track.Duration > 0 {
		delta := abs(u.Duration - track.Duration)
		if delta <= s.DurationTolerance {
			score += s.DurationBonus
		} else {
			score -= durationPenalty(delta, s.DurationTolerance, s.DurationPenalty)
		}
	}

	year := firstPositive(u.Year, hints.Year)
	if year > 0 && track.ReleaseYear > 0 {
		if abs(year-track.ReleaseYear) <= s.YearTolerance {
			score += s.YearBonus
		} else {
			score -= s.YearPenalty
		}
	}

	score = math.Round(math.Max(0, math.Min(fuzzyCeiling, score))*10) / 10
	return Match{Track: track, Score: score, Reason: reason(exactTitle, titleSim, artistSim)}
}

// durationPenalty grows linearly from half the penalty just outside the tolerance
// to the full penalty at ten times the tolerance.
func durationPenalty(delta, tolerance int, full float64) float64 {
	if tolerance <= 0 || delta >= 10*tolerance {
		return full
	}
	frac := float64(delta-tolerance) / float64(9*tolerance)
	return full * (0.5 + 0.5*frac)
}

// reason describes a fuzzy score. Only an unmodified title is reported as exact.
func reason(exactTitle bool, titleSim, artistSim float64) string {
	switch {
	case exactTitle:
		return "Exact title match"
	case titleSim >= 0.8:
		return "Similar title match"
	case artistSim >= 0.9:
		return "Artist match"
	default:
		return "Weak match"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
