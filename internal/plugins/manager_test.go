package plugins

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/repositories"
	"github.com/desertthunder/curator/internal/shared"
	tu "github.com/desertthunder/curator/internal/testing"
)

// cloningExecutor fakes git clone by creating the destination with a manifest.
func cloningExecutor(manifest string) *tu.MockExecutor {
	return &tu.MockExecutor{
		Handler: func(dir, name string, args ...string) ([]byte, error) {
			if name == "git" && len(args) == 4 && args[0] == "clone" {
				if err := os.MkdirAll(args[3], 0755); err != nil {
					return nil, err
				}
				return nil, os.WriteFile(filepath.Join(args[3], "package.json"), []byte(manifest), 0644)
			}
			if name == "git" && len(args) > 0 && args[0] == "rev-parse" {
				return []byte("abc1234\n"), nil
			}
			return nil, nil
		},
	}
}

func newManager(t *testing.T, exec Executor) (*Manager, *repositories.PluginRepository, string) {
	t.Helper()
	store := repositories.NewPluginRepository(tu.NewTestDB(t))
	dir := t.TempDir()
	return NewManager(store, Options{Dir: dir, Executor: exec, Logger: log.New(io.Discard)}), store, dir
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("InstallLocal", func(t *testing.T) {
		m, _, _ := newManager(t, &tu.MockExecutor{})
		src := filepath.Join(t.TempDir(), "lyrics-fetcher")
		tu.WriteFile(t, filepath.Join(src, "package.json"), `{"name": "lyrics", "version": "1.2.0"}`)

		p, err := m.InstallLocal(ctx, src)
		if err != nil {
			t.Fatalf("failed to install: %v", err)
		}
		if p.Name != "lyrics" || p.Version != "1.2.0" || p.Enabled {
			t.Errorf("unexpected plugin %+v", p)
		}

		if _, err := m.InstallLocal(ctx, src); !errors.Is(err, shared.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("InstallLocalMissingDir", func(t *testing.T) {
		m, _, _ := newManager(t, &tu.MockExecutor{})
		if _, err := m.InstallLocal(ctx, filepath.Join(t.TempDir(), "nope")); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected ErrEntityNotFound, got %v", err)
		}
	})

	t.Run("InstallRemote", func(t *testing.T) {
		exec := cloningExecutor(`{"scripts": {"build": "tsc"}}`)
		m, _, dir := newManager(t, exec)

		p, err := m.InstallRemote(ctx, "https://example.com/org/cover-art.git", models.ReferenceTag, "v2.0.0")
		if err != nil {
			t.Fatalf("failed to install: %v", err)
		}
		if p.Name != "cover-art" || p.Path != filepath.Join(dir, "cover-art") {
			t.Errorf("unexpected plugin %+v", p)
		}
		if p.Version != "abc1234" {
			t.Errorf("expected commit version, got %q", p.Version)
		}
		if !exec.Ran("git checkout v2.0.0") {
			t.Errorf("expected checkout of tag, got %v", exec.Commands)
		}
	})

	t.Run("InstallRemoteRejectsOptionLikeReference", func(t *testing.T) {
		exec := cloningExecutor(`{"version": "1.0.0"}`)
		m, _, dir := newManager(t, exec)

		_, err := m.InstallRemote(ctx, "https://example.com/org/scrobbler.git", models.ReferenceTag, "--upload-pack=touch /tmp/x")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if !exec.Ran("git clone -- https://example.com/org/scrobbler.git") {
			t.Errorf("expected operands after --, got %v", exec.Commands)
		}
		if exec.Ran("git checkout") {
			t.Errorf("expected no checkout, got %v", exec.Commands)
		}
		if _, err := os.Stat(filepath.Join(dir, "scrobbler")); !os.IsNotExist(err) {
			t.Errorf("expected clone to be removed, got %v", err)
		}
	})

	t.Run("SetEnabled", func(t *testing.T) {
		m, store, _ := newManager(t, &tu.MockExecutor{})
		p := &models.Plugin{Name: "p", Path: t.TempDir()}
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("failed to create plugin: %v", err)
		}

		if _, changed, err := m.SetEnabled(ctx, p.ID, true); err != nil || !changed {
			t.Fatalf("expected enable to change state, got %v %v", changed, err)
		}
		if _, changed, err := m.SetEnabled(ctx, p.ID, true); err != nil || changed {
			t.Errorf("expected second enable to be a no-op, got %v %v", changed, err)
		}
	})

	t.Run("UpgradeRequiresRemote", func(t *testing.T) {
		m, store, _ := newManager(t, &tu.MockExecutor{})
		p := &models.Plugin{Name: "local", Path: t.TempDir()}
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("failed to create plugin: %v", err)
		}
		if _, err := m.Upgrade(ctx, p.ID, ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ChangeReference", func(t *testing.T) {
		exec := cloningExecutor(`{"version": "3.0.0"}`)
		m, _, _ := newManager(t, exec)
		p, err := m.InstallRemote(ctx, "git@example.com:org/tagger.git", "", "")
		if err != nil {
			t.Fatalf("failed to install: %v", err)
		}

		p, err = m.ChangeReference(ctx, p.ID, models.ReferenceBranch, "develop")
		if err != nil {
			t.Fatalf("failed to change reference: %v", err)
		}
		if p.Reference != "develop" || p.ReferenceType != models.ReferenceBranch {
			t.Errorf("unexpected plugin %+v", p)
		}
		if !exec.Ran("git checkout -B develop origin/develop") {
			t.Errorf("expected branch checkout, got %v", exec.Commands)
		}
	})

	t.Run("Build", func(t *testing.T) {
		exec := cloningExecutor(`{"scripts": {"build": "tsc"}}`)
		m, _, _ := newManager(t, exec)
		p, err := m.InstallRemote(ctx, "https://example.com/org/ui.git", "", "")
		if err != nil {
			t.Fatalf("failed to install: %v", err)
		}

		if _, err := m.Build(ctx, p.ID); err != nil {
			t.Fatalf("failed to build: %v", err)
		}
		if !exec.Ran("npm install") || !exec.Ran("npm run build") {
			t.Errorf("expected npm install and build, got %v", exec.Commands)
		}
	})

	t.Run("MigrateWithoutScript", func(t *testing.T) {
		exec := &tu.MockExecutor{}
		m, _, _ := newManager(t, exec)
		if err := m.Migrate(ctx, &models.Plugin{Name: "p", Path: t.TempDir()}); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if len(exec.Commands) != 0 {
			t.Errorf("expected no commands, got %v", exec.Commands)
		}
	})

	t.Run("Uninstall", func(t *testing.T) {
		m, store, _ := newManager(t, cloningExecutor(`{}`))
		p, err := m.InstallRemote(ctx, "https://example.com/org/gone.git", "", "")
		if err != nil {
			t.Fatalf("failed to install: %v", err)
		}

		if _, err := m.Uninstall(ctx, p.ID); err != nil {
			t.Fatalf("failed to uninstall: %v", err)
		}
		if _, err := os.Stat(p.Path); !os.IsNotExist(err) {
			t.Errorf("expected checkout to be removed, got %v", err)
		}
		if _, err := store.Get(ctx, p.ID); !errors.Is(err, shared.ErrEntityNotFound) {
			t.Errorf("expected plugin row removed, got %v", err)
		}
	})
}

func TestRepoName(t *testing.T) {
	tc := []struct {
		in, want string
	}{
		{"https://github.com/org/my-plugin.git", "my-plugin"},
		{"https://github.com/org/my-plugin/", "my-plugin"},
		{"git@github.com:org/tagger.git", "tagger"},
		{"", ""},
	}

	for _, tt := range tc {
		if got := RepoName(tt.in); got != tt.want {
			t.Errorf("RepoName(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
