package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func createTask(t *testing.T, repo *TaskRepository, taskType models.TaskType, priority int) *models.Task {
	t.Helper()
	task := &models.Task{Type: taskType, Priority: priority}
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

// seedCatalog inserts one artist, one album and one track and returns them.
func seedCatalog(t *testing.T, db *sql.DB) (*models.Artist, *models.Album, *models.Track) {
	t.Helper()
	ctx := context.Background()

	artist := &models.Artist{MBID: "b10bbbfc-cf9e-42e0-be17-e2c3e1d2600d", Name: "The Beatles", Monitored: true}
	if err := NewArtistRepository(db).Create(ctx, artist); err != nil {
		t.Fatalf("failed to create artist: %v", err)
	}

	album := &models.Album{ArtistID: artist.ID, ReleaseGroupID: "rg-abbey-road", Title: "Abbey Road", ReleaseYear: 1969}
	if err := NewAlbumRepository(db).Create(ctx, album); err != nil {
		t.Fatalf("failed to create album: %v", err)
	}

	track := &models.Track{AlbumID: album.ID, ArtistID: artist.ID, Title: "Come Together", TrackNumber: 1, Duration: 259}
	if err := NewTrackRepository(db).Create(ctx, track); err != nil {
		t.Fatalf("failed to create track: %v", err)
	}

	return artist, album, track
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := NextSequence(ctx, db, "tasks")
	if err != nil {
		t.Fatalf("failed to get sequence: %v", err)
	}
	second, err := NextSequence(ctx, db, "tasks")
	if err != nil {
		t.Fatalf("failed to get sequence: %v", err)
	}

	if second != first+1 {
		t.Errorf("expected consecutive sequences, got %d then %d", first, second)
	}
}

func TestTaskRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := createTask(t, repo, models.TaskSyncArtist, 3)

		if task.ID == "" {
			t.Error("task ID should be set after creation")
		}
		if task.Status != models.StatusPending {
			t.Errorf("expected pending, got %s", task.Status)
		}
		if task.Sequence == 0 {
			t.Error("task sequence should be set after creation")
		}
	})

	t.Run("CreateRejectsUnknownType", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		err := repo.Create(ctx, &models.Task{Type: "resync-everything"})
		if !errors.Is(err, shared.ErrInvalidTaskType) {
			t.Errorf("expected ErrInvalidTaskType, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := &models.Task{
			Type:       models.TaskScanLibrary,
			Priority:   2,
			EntityID:   models.ID64(7),
			EntityName: "Main",
			Metadata:   []byte(`{"library_id":7}`),
		}
		if err := repo.Create(ctx, task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		got, err := repo.Get(ctx, task.ID)
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}

		if got.Type != task.Type || got.Priority != 2 || got.EntityName != "Main" {
			t.Errorf("unexpected task %+v", got)
		}
		if got.EntityID == nil || *got.EntityID != 7 {
			t.Errorf("expected entity id 7, got %v", got.EntityID)
		}
		if string(got.Metadata) != `{"library_id":7}` {
			t.Errorf("unexpected metadata %s", got.Metadata)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		createTask(t, repo, models.TaskSyncArtist, 3)
		createTask(t, repo, models.TaskScanLibrary, 2)
		createTask(t, repo, models.TaskScanLibrary, 2)

		all, err := repo.List(ctx, nil)
		if err != nil {
			t.Fatalf("failed to list tasks: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 tasks, got %d", len(all))
		}
		if all[0].Sequence < all[2].Sequence {
			t.Error("expected newest task first")
		}

		scans, err := repo.List(ctx, map[string]any{"type": models.TaskScanLibrary, "limit": 1})
		if err != nil {
			t.Fatalf("failed to list tasks: %v", err)
		}
		if len(scans) != 1 || scans[0].Type != models.TaskScanLibrary {
			t.Errorf("expected one scan-library task, got %+v", scans)
		}
	})

	t.Run("ClaimNextOrdersByPriority", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		for _, p := range []int{1, 5, 3} {
			createTask(t, repo, models.TaskFixTrackStatuses, p)
		}

		var got []int
		for range 3 {
			task, err := repo.ClaimNext(ctx, "worker-1", 0)
			if err != nil {
				t.Fatalf("failed to claim task: %v", err)
			}
			if task == nil {
				t.Fatal("expected a task")
			}
			got = append(got, task.Priority)
		}

		want := []int{5, 3, 1}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, got)
			}
		}

		task, err := repo.ClaimNext(ctx, "worker-1", 0)
		if err != nil {
			t.Fatalf("failed to claim task: %v", err)
		}
		if task != nil {
			t.Errorf("expected empty queue, got %s", task.ID)
		}
	})

	t.Run("ClaimNextBreaksTiesByCreation", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		first := createTask(t, repo, models.TaskSyncAlbum, 2)
		createTask(t, repo, models.TaskSyncAlbum, 2)

		task, err := repo.ClaimNext(ctx, "worker-1", 0)
		if err != nil {
			t.Fatalf("failed to claim task: %v", err)
		}
		if task.ID != first.ID {
			t.Errorf("expected first created task, got sequence %d", task.Sequence)
		}
	})

	t.Run("ClaimNextAgesOldTasks", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTaskRepository(db)
		old := createTask(t, repo, models.TaskAnalyzeAudioQuality, 0)
		createTask(t, repo, models.TaskSyncArtist, 3)

		if _, err := db.Exec("UPDATE tasks SET created_at = ? WHERE id = ?", time.Now().UTC().Add(-time.Hour), old.ID); err != nil {
			t.Fatalf("failed to backdate task: %v", err)
		}

		task, err := repo.ClaimNext(ctx, "worker-1", 10*time.Minute)
		if err != nil {
			t.Fatalf("failed to claim task: %v", err)
		}
		if task.ID != old.ID {
			t.Errorf("expected aged task to be claimed first, got %s", task.Type)
		}
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := createTask(t, repo, models.TaskSyncArtist, 3)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for _, worker := range []string{"worker-1", "worker-2"} {
			wg.Add(1)
			go func(worker string) {
				defer wg.Done()
				ok, err := repo.Claim(ctx, task.ID, worker)
				if err != nil {
					t.Errorf("failed to claim task: %v", err)
					return
				}
				if ok {
					mu.Lock()
					claimed++
					mu.Unlock()
				}
			}(worker)
		}
		wg.Wait()

		if claimed != 1 {
			t.Errorf("expected exactly one claim, got %d", claimed)
		}

		got, err := repo.Get(ctx, task.ID)
		if err != nil {
			t.Fatalf("failed to get task: %v", err)
		}
		if got.Status != models.StatusRunning || got.StartedAt == nil {
			t.Errorf("expected running task with start time, got %s", got.Status)
		}
	})

	t.Run("CompleteAfterCancelIsDiscarded", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := createTask(t, repo, models.TaskSyncArtist, 3)

		if ok, err := repo.Claim(ctx, task.ID, "worker-1"); err != nil || !ok {
			t.Fatalf("failed to claim task: %v", err)
		}
		if ok, err := repo.Cancel(ctx, task.ID, "user request"); err != nil || !ok {
			t.Fatalf("failed to cancel task: %v", err)
		}

		ok, err := repo.Complete(ctx, task.ID, models.StatusSuccess, "", map[string]any{"status": "created"})
		if err != nil {
			t.Fatalf("failed to complete task: %v", err)
		}
		if ok {
			t.Error("expected completion of a cancelled task to be rejected")
		}

		got, _ := repo.Get(ctx, task.ID)
		if got.Status != models.StatusCancelled || got.ErrorMessage != "user request" {
			t.Errorf("expected cancelled task to keep its reason, got %s %q", got.Status, got.ErrorMessage)
		}
	})

	t.Run("CancelLeavesTerminalOutcome", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := createTask(t, repo, models.TaskSyncArtist, 3)

		repo.Claim(ctx, task.ID, "worker-1")
		if ok, err := repo.Complete(ctx, task.ID, models.StatusSuccess, "", map[string]any{"status": "created"}); err != nil || !ok {
			t.Fatalf("failed to complete task: %v", err)
		}

		ok, err := repo.Cancel(ctx, task.ID, "too late")
		if err != nil {
			t.Fatalf("failed to cancel task: %v", err)
		}
		if ok {
			t.Error("expected cancel of a finished task to be rejected")
		}

		got, _ := repo.Get(ctx, task.ID)
		if got.Status != models.StatusSuccess {
			t.Errorf("expected success, got %s", got.Status)
		}
		if got.ResultMetadata["status"] != "created" {
			t.Errorf("expected result metadata to round trip, got %v", got.ResultMetadata)
		}
	})

	t.Run("FindActive", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		task := &models.Task{Type: models.TaskSyncArtist, Priority: 3, EntityMBID: "mbid-1"}
		if err := repo.Create(ctx, task); err != nil {
			t.Fatalf("failed to create task: %v", err)
		}

		got, err := repo.FindActive(ctx, models.TaskSyncArtist, models.EntityRef{MBID: "mbid-1"})
		if err != nil {
			t.Fatalf("failed to find active task: %v", err)
		}
		if got == nil || got.ID != task.ID {
			t.Fatalf("expected active task %s, got %v", task.ID, got)
		}

		repo.Cancel(ctx, task.ID, "")
		got, err = repo.FindActive(ctx, models.TaskSyncArtist, models.EntityRef{MBID: "mbid-1"})
		if err != nil {
			t.Fatalf("failed to find active task: %v", err)
		}
		if got != nil {
			t.Errorf("expected no active task, got %s", got.ID)
		}
	})

	t.Run("ListForEntity", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		byMBID := &models.Task{Type: models.TaskSyncArtist, Priority: 3, EntityMBID: "mbid-1"}
		byID := &models.Task{Type: models.TaskSyncArtistAlbums, Priority: 2, EntityID: models.ID64(4)}
		other := &models.Task{Type: models.TaskSyncArtistAlbums, Priority: 2, EntityID: models.ID64(5)}
		for _, task := range []*models.Task{byMBID, byID, other} {
			if err := repo.Create(ctx, task); err != nil {
				t.Fatalf("failed to create task: %v", err)
			}
		}

		tasks, err := repo.ListForEntity(ctx, "mbid-1", models.ID64(4))
		if err != nil {
			t.Fatalf("failed to list tasks: %v", err)
		}
		if len(tasks) != 2 {
			t.Fatalf("expected 2 tasks, got %d", len(tasks))
		}

		byType, err := repo.FindByEntityID(ctx, 5, models.TaskSyncArtistAlbums)
		if err != nil {
			t.Fatalf("failed to find tasks: %v", err)
		}
		if len(byType) != 1 || byType[0].ID != other.ID {
			t.Errorf("expected task %s, got %+v", other.ID, byType)
		}

		if _, err := repo.ListForEntity(ctx, "", nil); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("FailStale", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTaskRepository(db)
		task := createTask(t, repo, models.TaskScanLibrary, 2)
		repo.Claim(ctx, task.ID, "worker-1")

		if _, err := db.Exec("UPDATE tasks SET started_at = ? WHERE id = ?", time.Now().UTC().Add(-2*time.Hour), task.ID); err != nil {
			t.Fatalf("failed to backdate task: %v", err)
		}

		n, err := repo.FailStale(ctx, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("failed to fail stale tasks: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 stale task, got %d", n)
		}

		got, _ := repo.Get(ctx, task.ID)
		if got.Status != models.StatusFailed {
			t.Errorf("expected failed, got %s", got.Status)
		}
	})

	t.Run("DeleteFinalizedBeforeKeepsActive", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewTaskRepository(db)

		pending := createTask(t, repo, models.TaskSyncArtist, 3)
		running := createTask(t, repo, models.TaskSyncArtist, 3)
		done := createTask(t, repo, models.TaskSyncArtist, 3)
		recent := createTask(t, repo, models.TaskSyncArtist, 3)

		repo.Claim(ctx, running.ID, "worker-1")
		repo.Claim(ctx, done.ID, "worker-1")
		repo.Complete(ctx, done.ID, models.StatusFailed, "boom", nil)
		repo.Cancel(ctx, recent.ID, "")

		old := time.Now().UTC().AddDate(0, 0, -60)
		for _, id := range []string{pending.ID, running.ID, done.ID} {
			if _, err := db.Exec("UPDATE tasks SET created_at = ? WHERE id = ?", old, id); err != nil {
				t.Fatalf("failed to backdate task: %v", err)
			}
		}

		n, err := repo.DeleteFinalizedBefore(ctx, time.Now().AddDate(0, 0, -30))
		if err != nil {
			t.Fatalf("failed to delete tasks: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 task removed, got %d", n)
		}

		for _, id := range []string{pending.ID, running.ID, recent.ID} {
			if _, err := repo.Get(ctx, id); err != nil {
				t.Errorf("expected task %s to survive cleanup: %v", id, err)
			}
		}
		if _, err := repo.Get(ctx, done.ID); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected old failed task to be removed, got %v", err)
		}
	})

	t.Run("Statistics", func(t *testing.T) {
		repo := NewTaskRepository(setupTestDB(t))
		createTask(t, repo, models.TaskSyncArtist, 3)
		createTask(t, repo, models.TaskSyncArtist, 3)
		cancelled := createTask(t, repo, models.TaskScanLibrary, 2)
		repo.Cancel(ctx, cancelled.ID, "")

		stats, err := repo.Statistics(ctx)
		if err != nil {
			t.Fatalf("failed to get statistics: %v", err)
		}

		if stats.Total != 3 {
			t.Errorf("expected 3 total, got %d", stats.Total)
		}
		if stats.ByStatus[models.StatusPending] != 2 || stats.ByStatus[models.StatusCancelled] != 1 {
			t.Errorf("unexpected status counts %v", stats.ByStatus)
		}
		if stats.ByStatus[models.StatusRunning] != 0 {
			t.Errorf("expected zero running, got %d", stats.ByStatus[models.StatusRunning])
		}
		if stats.ByType[models.TaskSyncArtist] != 2 {
			t.Errorf("unexpected type counts %v", stats.ByType)
		}
	})
}

func TestEffectivePriority(t *testing.T) {
	tc := []struct {
		name     string
		priority int
		age      time.Duration
		aging    time.Duration
		want     int
	}{
		{"aging disabled", 1, time.Hour, 0, 1},
		{"younger than interval", 1, 5 * time.Minute, 10 * time.Minute, 1},
		{"one interval", 1, 10 * time.Minute, 10 * time.Minute, 2},
		{"capped", 3, 5 * time.Hour, 10 * time.Minute, models.MaxPriority},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectivePriority(tt.priority, tt.age, tt.aging); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCatalogRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("ArtistMBIDIsUnique", func(t *testing.T) {
		db := setupTestDB(t)
		artist, _, _ := seedCatalog(t, db)

		dup := &models.Artist{MBID: artist.MBID, Name: "Beatles"}
		if err := NewArtistRepository(db).Create(ctx, dup); err == nil {
			t.Error("expected duplicate mbid to be rejected")
		}

		got, err := NewArtistRepository(db).GetByMBID(ctx, artist.MBID)
		if err != nil {
			t.Fatalf("failed to get artist: %v", err)
		}
		if got.ID != artist.ID {
			t.Errorf("expected artist %d, got %d", artist.ID, got.ID)
		}
	})

	t.Run("FindByArtistAndTitle", func(t *testing.T) {
		db := setupTestDB(t)
		_, _, track := seedCatalog(t, db)

		tracks, err := NewTrackRepository(db).FindByArtistAndTitle(ctx, "the beatles", "COME TOGETHER")
		if err != nil {
			t.Fatalf("failed to find tracks: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != track.ID {
			t.Fatalf("expected track %d, got %+v", track.ID, tracks)
		}
		if tracks[0].AlbumTitle != "Abbey Road" || tracks[0].ArtistName != "The Beatles" {
			t.Errorf("expected joined names, got %q %q", tracks[0].ArtistName, tracks[0].AlbumTitle)
		}
	})

	t.Run("AlbumTrackCounts", func(t *testing.T) {
		db := setupTestDB(t)
		_, album, track := seedCatalog(t, db)

		f := &models.TrackFile{TrackID: track.ID, Path: "/music/01 Come Together.flac"}
		if err := NewTrackFileRepository(db).Create(ctx, f); err != nil {
			t.Fatalf("failed to create track file: %v", err)
		}

		total, withFile, err := NewAlbumRepository(db).TrackCounts(ctx, album.ID)
		if err != nil {
			t.Fatalf("failed to count tracks: %v", err)
		}
		if total != 1 || withFile != 1 {
			t.Errorf("expected 1/1, got %d/%d", withFile, total)
		}
	})

	t.Run("SyncHasFile", func(t *testing.T) {
		db := setupTestDB(t)
		artist, _, track := seedCatalog(t, db)
		tracks := NewTrackRepository(db)

		track.HasFile = true
		if err := tracks.Update(ctx, track); err != nil {
			t.Fatalf("failed to update track: %v", err)
		}

		n, err := tracks.SyncHasFile(ctx, artist.ID)
		if err != nil {
			t.Fatalf("failed to sync flags: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 track fixed, got %d", n)
		}

		got, _ := tracks.Get(ctx, track.ID)
		if got.HasFile {
			t.Error("expected has_file to be cleared")
		}
	})
}

func TestUnmatchedTrackRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("PathIsUnique", func(t *testing.T) {
		repo := NewUnmatchedTrackRepository(setupTestDB(t))
		u := &models.UnmatchedTrack{Path: "/music/a.mp3", Artist: "A", Title: "B"}
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("failed to create unmatched track: %v", err)
		}
		if err := repo.Create(ctx, &models.UnmatchedTrack{Path: "/music/a.mp3"}); err == nil {
			t.Error("expected duplicate path to be rejected")
		}

		got, err := repo.GetByPath(ctx, "/music/a.mp3")
		if err != nil {
			t.Fatalf("failed to get unmatched track: %v", err)
		}
		if !got.SameTags(u) {
			t.Errorf("expected stored tags to match, got %+v", got)
		}
	})

	t.Run("Bind", func(t *testing.T) {
		db := setupTestDB(t)
		_, _, track := seedCatalog(t, db)
		repo := NewUnmatchedTrackRepository(db)

		u := &models.UnmatchedTrack{Path: "/music/come together.mp3", Artist: "The Beatles", Title: "Come Together"}
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("failed to create unmatched track: %v", err)
		}

		f := &models.TrackFile{TrackID: track.ID, Path: u.Path, Size: 1024}
		if err := repo.Bind(ctx, u, f); err != nil {
			t.Fatalf("failed to bind: %v", err)
		}

		if _, err := repo.Get(ctx, u.ID); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected unmatched track to be removed, got %v", err)
		}

		bound, err := NewTrackFileRepository(db).GetByPath(ctx, u.Path)
		if err != nil {
			t.Fatalf("failed to get track file: %v", err)
		}
		if bound.TrackID != track.ID {
			t.Errorf("expected track %d, got %d", track.ID, bound.TrackID)
		}

		got, _ := NewTrackRepository(db).Get(ctx, track.ID)
		if !got.HasFile {
			t.Error("expected track to be flagged as having a file")
		}

		if err := repo.Bind(ctx, u, &models.TrackFile{TrackID: track.ID, Path: "/other.mp3"}); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected second bind to fail with not found, got %v", err)
		}
	})
}

func TestPluginRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPluginRepository(setupTestDB(t))

	p := &models.Plugin{Name: "lyrics", Path: "/plugins/lyrics", Repository: "https://example.com/lyrics.git"}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("failed to create plugin: %v", err)
	}

	p.Enabled = true
	p.Reference, p.ReferenceType = "v1.2.0", models.ReferenceTag
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("failed to update plugin: %v", err)
	}

	enabled, err := repo.List(ctx, map[string]any{"enabled": true})
	if err != nil {
		t.Fatalf("failed to list plugins: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Reference != "v1.2.0" {
		t.Errorf("expected one enabled plugin at v1.2.0, got %+v", enabled)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("failed to delete plugin: %v", err)
	}
	if _, err := repo.GetByName(ctx, "lyrics"); !errors.Is(err, shared.ErrEntityNotFound) {
		t.Errorf("expected ErrEntityNotFound, got %v", err)
	}
}
