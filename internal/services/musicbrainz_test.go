package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/curator/internal/shared"
)

func newTestService(t *testing.T, handler http.HandlerFunc, cache Cache) *MusicBrainzService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewMusicBrainzService(MusicBrainzOptions{
		BaseURL:   server.URL,
		RateLimit: 1000,
		Timeout:   time.Second,
		Cache:     cache,
		CacheTTL:  time.Minute,
	})
}

func TestMusicBrainzService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewMusicBrainzService", func(t *testing.T) {
		t.Run("applies defaults", func(t *testing.T) {
			svc := NewMusicBrainzService(MusicBrainzOptions{})
			if svc.baseURL != defaultMBBaseURL {
				t.Errorf("expected baseURL to be %s, got %s", defaultMBBaseURL, svc.baseURL)
			}
			if svc.httpClient.Timeout != defaultMBTimeout {
				t.Errorf("expected timeout %v, got %v", defaultMBTimeout, svc.httpClient.Timeout)
			}
			if svc.Name() != "MusicBrainz" {
				t.Errorf("expected name to be 'MusicBrainz', got %s", svc.Name())
			}
		})
	})

	t.Run("SearchArtist", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/artist" {
				t.Errorf("expected path /artist, got %s", r.URL.Path)
			}
			if r.URL.Query().Get("query") != `artist:"The Beatles"` {
				t.Errorf("unexpected query %q", r.URL.Query().Get("query"))
			}
			if r.URL.Query().Get("fmt") != "json" {
				t.Error("expected fmt=json")
			}
			if r.Header.Get("User-Agent") == "" {
				t.Error("expected User-Agent header")
			}

			json.NewEncoder(w).Encode(map[string]any{
				"artists": []map[string]any{
					{"id": "b10bbbfc", "name": "The Beatles", "sort-name": "Beatles, The", "score": 100},
					{"id": "other", "name": "Beatles Revival", "score": 61},
				},
			})
		}, nil)

		artists, err := svc.SearchArtist(ctx, "The Beatles")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(artists) != 2 {
			t.Fatalf("expected 2 artists, got %d", len(artists))
		}
		if artists[0].MBID != "b10bbbfc" || artists[0].SortName != "Beatles, The" || artists[0].Score != 100 {
			t.Errorf("unexpected first artist %+v", artists[0])
		}
	})

	t.Run("GetArtistReleaseGroupsPaginates", func(t *testing.T) {
		var calls atomic.Int32
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			groups := make([]map[string]any, 0, 100)
			n := 100
			if r.URL.Query().Get("offset") == "100" {
				n = 2
			}
			for range n {
				groups = append(groups, map[string]any{"id": "rg", "title": "Album", "primary-type": "Album"})
			}
			json.NewEncoder(w).Encode(map[string]any{"release-group-count": 102, "release-groups": groups})
		}, nil)

		groups, err := svc.GetArtistReleaseGroups(ctx, "b10bbbfc")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(groups) != 102 {
			t.Errorf("expected 102 release groups, got %d", len(groups))
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 requests, got %d", calls.Load())
		}
		if groups[0].ArtistMBID != "b10bbbfc" {
			t.Errorf("expected artist mbid to default to the query, got %q", groups[0].ArtistMBID)
		}
	})

	t.Run("GetReleaseGroup", func(t *testing.T) {
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/release-group/rg-1":
				json.NewEncoder(w).Encode(map[string]any{
					"id":                 "rg-1",
					"title":              "Abbey Road",
					"primary-type":       "Album",
					"first-release-date": "1969-09-26",
					"artist-credit":      []map[string]any{{"name": "The Beatles", "artist": map[string]any{"id": "b10bbbfc", "name": "The Beatles"}}},
					"releases": []map[string]any{
						{"id": "bootleg", "status": "Bootleg", "date": "1960"},
						{"id": "reissue", "status": "Official", "date": "1987-10-19"},
						{"id": "original", "status": "Official", "date": "1969-09-26"},
					},
				})
			case "/release/original":
				json.NewEncoder(w).Encode(map[string]any{
					"id": "original",
					"media": []map[string]any{{
						"position": 1,
						"tracks": []map[string]any{
							{"position": 1, "title": "Come Together", "length": 259000, "recording": map[string]any{"id": "rec-1"}},
							{"position": 2, "title": "Something", "length": 182000, "recording": map[string]any{"id": "rec-2"}},
						},
					}},
				})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		}, nil)

		rg, err := svc.GetReleaseGroup(ctx, "rg-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rg.Year() != 1969 || rg.ArtistMBID != "b10bbbfc" {
			t.Errorf("unexpected release group %+v", rg)
		}
		if len(rg.Tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(rg.Tracks))
		}
		if rg.Tracks[0].Duration != 259 || rg.Tracks[0].MBID != "rec-1" || rg.Tracks[0].Disc != 1 {
			t.Errorf("unexpected first track %+v", rg.Tracks[0])
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tc := []struct {
			name   string
			status int
			want   error
		}{
			{"not found", http.StatusNotFound, shared.ErrEntityNotFound},
			{"unavailable", http.StatusServiceUnavailable, shared.ErrServiceUnavailable},
			{"rate limited", http.StatusTooManyRequests, shared.ErrServiceUnavailable},
			{"bad request", http.StatusBadRequest, shared.ErrAPIRequest},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
				}, nil)

				if _, err := svc.GetArtist(ctx, "x"); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		}))
		defer server.Close()

		svc := NewMusicBrainzService(MusicBrainzOptions{BaseURL: server.URL, RateLimit: 1000, Timeout: 50 * time.Millisecond})
		if _, err := svc.GetArtist(ctx, "x"); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("Cache", func(t *testing.T) {
		var calls atomic.Int32
		cache := NewMemoryCache()
		svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			json.NewEncoder(w).Encode(map[string]any{"id": "b10bbbfc", "name": "The Beatles"})
		}, cache)

		for range 2 {
			a, err := svc.GetArtist(ctx, "b10bbbfc")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if a.Name != "The Beatles" {
				t.Errorf("unexpected artist %+v", a)
			}
		}
		if calls.Load() != 1 {
			t.Errorf("expected second lookup to be cached, got %d requests", calls.Load())
		}

		n, err := cache.Clear(ctx, cacheKeyPrefix+"/artist")
		if err != nil {
			t.Fatalf("failed to clear cache: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 entry cleared, got %d", n)
		}

		svc.GetArtist(ctx, "b10bbbfc")
		if calls.Load() != 2 {
			t.Errorf("expected a request after clearing, got %d", calls.Load())
		}
	})
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	cache.Set(ctx, "mb:/artist/a", []byte("a"), time.Minute)
	cache.Set(ctx, "mb:/release/b", []byte("b"), 0)
	cache.Set(ctx, "expired", []byte("c"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	if _, ok, _ := cache.Get(ctx, "expired"); ok {
		t.Error("expected expired entry to be missing")
	}
	if v, ok, _ := cache.Get(ctx, "mb:/release/b"); !ok || string(v) != "b" {
		t.Errorf("expected entry without ttl to persist, got %q %v", v, ok)
	}

	n, err := cache.Clear(ctx, "")
	if err != nil {
		t.Fatalf("failed to clear cache: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries cleared, got %d", n)
	}
}
