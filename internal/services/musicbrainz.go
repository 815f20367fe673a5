// MusicBrainz [MetadataSource] implementation
//
// Talks to the MusicBrainz JSON web service (ws/2). Requests are paced by a token bucket
// because the public server rejects clients above one request per second.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/curator/internal/shared"
)

const (
	defaultMBBaseURL   = "https://musicbrainz.org/ws/2"
	defaultMBUserAgent = "curator/0.1 ( https://github.com/desertthunder/curator )"
	defaultMBTimeout   = 15 * time.Second
	cacheKeyPrefix     = "mb:"
)

type mbArtist struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	SortName string `json:"sort-name"`
	Score    int    `json:"score"`
}

type mbArtistCredit struct {
	Name   string   `json:"name"`
	Artist mbArtist `json:"artist"`
}

type mbReleaseGroup struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	PrimaryType      string           `json:"primary-type"`
	FirstReleaseDate string           `json:"first-release-date"`
	ArtistCredit     []mbArtistCredit `json:"artist-credit"`
	Releases         []mbRelease      `json:"releases"`
}

type mbRelease struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Date   string    `json:"date"`
	Media  []mbMedia `json:"media"`
}

type mbMedia struct {
	Position int       `json:"position"`
	Tracks   []mbTrack `json:"tracks"`
}

type mbTrack struct {
	Position  int    `json:"position"`
	Title     string `json:"title"`
	Length    int    `json:"length"` // milliseconds
	Recording struct {
		ID string `json:"id"`
	} `json:"recording"`
}

// MusicBrainzOptions configures [NewMusicBrainzService]. Zero values select defaults.
type MusicBrainzOptions struct {
	BaseURL   string
	UserAgent string
	RateLimit float64 // requests per second
	Timeout   time.Duration
	Cache     Cache
	CacheTTL  time.Duration
}

// MusicBrainzService implements the MetadataSource interface for MusicBrainz.
type MusicBrainzService struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
}

// NewMusicBrainzService creates a new MusicBrainz client.
func NewMusicBrainzService(opts MusicBrainzOptions) *MusicBrainzService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultMBBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultMBUserAgent
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultMBTimeout
	}

	return &MusicBrainzService{
		baseURL:    opts.BaseURL,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
	}
}

// Name returns the service name.
func (m *MusicBrainzService) Name() string {
	return "MusicBrainz"
}

// SearchArtist calls GET /artist?query=artist:"name".
func (m *MusicBrainzService) SearchArtist(ctx context.Context, name string) ([]Artist, error) {
	var resp struct {
		Artists []mbArtist `json:"artists"`
	}

	q := url.Values{"query": {fmt.Sprintf("artist:%q", name)}, "limit": {"10"}}
	if err := m.doRequest(ctx, "/artist", q, &resp); err != nil {
		return nil, err
	}

	artists := make([]Artist, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		artists = append(artists, Artist{MBID: a.ID, Name: a.Name, SortName: a.SortName, Score: a.Score})
	}
	return artists, nil
}

// GetArtist calls GET /artist/{mbid}.
func (m *MusicBrainzService) GetArtist(ctx context.Context, mbid string) (*Artist, error) {
	var a mbArtist
	if err := m.doRequest(ctx, "/artist/"+url.PathEscape(mbid), nil, &a); err != nil {
		return nil, err
	}
	return &Artist{MBID: a.ID, Name: a.Name, SortName: a.SortName, Score: 100}, nil
}

// GetArtistReleaseGroups calls GET /release-group?artist={mbid}, following pagination.
func (m *MusicBrainzService) GetArtistReleaseGroups(ctx context.Context, mbid string) ([]ReleaseGroup, error) {
	const pageSize = 100
	var groups []ReleaseGroup

	for offset := 0; ; offset += pageSize {
		var resp struct {
			Count         int              `json:"release-group-count"`
			ReleaseGroups []mbReleaseGroup `json:"release-groups"`
		}

		q := url.Values{
			"artist": {mbid},
			"limit":  {fmt.Sprint(pageSize)},
			"offset": {fmt.Sprint(offset)},
		}
		if err := m.doRequest(ctx, "/release-group", q, &resp); err != nil {
			return nil, err
		}

		for _, rg := range resp.ReleaseGroups {
			g := convertReleaseGroup(rg)
			if g.ArtistMBID == "" {
				g.ArtistMBID = mbid
			}
			groups = append(groups, g)
		}

		if len(resp.ReleaseGroups) < pageSize || offset+pageSize >= resp.Count {
			break
		}
	}

	return groups, nil
}

// GetReleaseGroup calls GET /release-group/{id}?inc=releases+artist-credits, then loads the
// track list of the first official release.
func (m *MusicBrainzService) GetReleaseGroup(ctx context.Context, id string) (*ReleaseGroup, error) {
	var rg mbReleaseGroup
	q := url.Values{"inc": {"releases artist-credits"}}
	if err := m.doRequest(ctx, "/release-group/"+url.PathEscape(id), q, &rg); err != nil {
		return nil, err
	}

	group := convertReleaseGroup(rg)

	release := representativeRelease(rg.Releases)
	if release == "" {
		return &group, nil
	}

	var rel mbRelease
	if err := m.doRequest(ctx, "/release/"+url.PathEscape(release), url.Values{"inc": {"recordings"}}, &rel); err != nil {
		return nil, err
	}

	for _, media := range rel.Media {
		disc := max(media.Position, 1)
		for _, t := range media.Tracks {
			group.Tracks = append(group.Tracks, Recording{
				MBID:     t.Recording.ID,
				Title:    t.Title,
				Position: t.Position,
				Disc:     disc,
				Duration: t.Length / 1000,
			})
		}
	}

	return &group, nil
}

func convertReleaseGroup(rg mbReleaseGroup) ReleaseGroup {
	g := ReleaseGroup{
		ID:               rg.ID,
		Title:            rg.Title,
		PrimaryType:      rg.PrimaryType,
		FirstReleaseDate: rg.FirstReleaseDate,
	}
	if len(rg.ArtistCredit) > 0 {
		g.ArtistMBID = rg.ArtistCredit[0].Artist.ID
		g.ArtistName = rg.ArtistCredit[0].Artist.Name
	}
	return g
}

// representativeRelease prefers the earliest official release, falling back to the first listed.
func representativeRelease(releases []mbRelease) string {
	var pick *mbRelease
	for i := range releases {
		r := &releases[i]
		if r.Status != "Official" {
			continue
		}
		if pick == nil || (r.Date != "" && (pick.Date == "" || r.Date < pick.Date)) {
			pick = r
		}
	}
	if pick != nil {
		return pick.ID
	}
	if len(releases) > 0 {
		return releases[0].ID
	}
	return ""
}

// doRequest performs a rate limited GET, serving from and populating the cache when one is set.
func (m *MusicBrainzService) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("fmt", "json")
	apiURL := m.baseURL + endpoint + "?" + query.Encode()
	key := cacheKeyPrefix + endpoint + "?" + query.Encode()

	if m.cache != nil {
		if data, ok, err := m.cache.Get(ctx, key); err == nil && ok {
			if err := json.Unmarshal(data, result); err == nil {
				return nil
			}
		}
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: waiting for rate limiter: %v", shared.ErrTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s: %v", shared.ErrTimeout, endpoint, err)
		}
		return fmt.Errorf("%w: request failed: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrEntityNotFound, endpoint)
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: musicbrainz status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%w: musicbrainz status %d: %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("%w: musicbrainz status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if m.cache != nil {
		_ = m.cache.Set(ctx, key, raw, m.cacheTTL)
	}

	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
